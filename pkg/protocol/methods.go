package protocol

// dApp JSON-RPC methods the wallet approves in every session namespace.
const (
	MethodHathorSignMessage    = "htr_signWithAddress"
	MethodHathorSendNanoTx     = "htr_sendNanoContractTx"
	MethodHathorSignOracleData = "htr_signOracleData"
	MethodHathorCreateToken    = "htr_createToken"
)

// HathorMethods is the ordered list of methods granted on session approval.
var HathorMethods = []string{
	MethodHathorSignMessage,
	MethodHathorSendNanoTx,
	MethodHathorSignOracleData,
	MethodHathorCreateToken,
}

// HathorEvents is the list of events granted on session approval (none yet).
var HathorEvents = []string{}

// HathorNamespace is the namespace key used in proposals and approvals.
const HathorNamespace = "hathor"

// Gateway methods.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"
	MethodStatus  = "status"

	MethodPromptActive = "prompt.active"
	MethodPromptAccept = "prompt.accept"
	MethodPromptReject = "prompt.reject"

	MethodSessionsList    = "sessions.list"
	MethodSessionsCancel  = "sessions.cancel"
	MethodSessionsRefresh = "sessions.refresh"

	MethodPair = "pair"

	MethodRequestsHistory = "requests.history"
	MethodUIState         = "ui.state"
)

// Relay sidecar methods, called by the sidecar adapter over the same frame format.
const (
	SidecarApproveSession  = "approveSession"
	SidecarRejectSession   = "rejectSession"
	SidecarRespondRequest  = "respondSessionRequest"
	SidecarActiveSessions  = "getActiveSessions"
	SidecarExtendSession   = "extendSession"
	SidecarDisconnect      = "disconnectSession"
	SidecarPair            = "pair"
	SidecarPendingRequests = "getPendingSessionRequests"
)
