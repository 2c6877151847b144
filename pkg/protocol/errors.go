package protocol

// Gateway error codes (ResponseFrame.Error.Code).
const (
	ErrInvalidRequest     = "INVALID_REQUEST"
	ErrUnavailable        = "UNAVAILABLE"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrNotFound           = "NOT_FOUND"
	ErrResourceExhausted  = "RESOURCE_EXHAUSTED"
	ErrFailedPrecondition = "FAILED_PRECONDITION"
	ErrInternal           = "INTERNAL"
)

// Relay error codes, taken from the WalletConnect sign error table.
// Only the ones walletbridge answers with are listed.
const (
	CodeUnauthorizedMethods = 3001
	CodeUserDisconnected    = 6000
	CodeUserRejected        = 5000
	CodeUserRejectedMethod  = 5002
	CodeInvalidPayload      = 5003
)

// Messages sent along with the relay error codes.
const (
	MsgRejectedByUser        = "Rejected by the user"
	MsgUserRejectedSession   = "User rejected the session"
	MsgUserCancelledSession  = "User cancelled the session"
	MsgUnableToExtendSession = "Unable to extend session"
)
