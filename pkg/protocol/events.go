package protocol

// Relay event names emitted by the session transport.
const (
	RelayEventSessionProposal = "session_proposal"
	RelayEventSessionRequest  = "session_request"
	RelayEventSessionDelete   = "session_delete"
	RelayEventDisconnect      = "disconnect"
)

// RelayEvents lists every relay event the bridge subscribes to, in registration order.
var RelayEvents = []string{
	RelayEventSessionRequest,
	RelayEventSessionProposal,
	RelayEventSessionDelete,
	RelayEventDisconnect,
}

// Gateway event names pushed to UI clients.
const (
	EventModal          = "ui.modal"
	EventStatus         = "ui.status"
	EventSessions       = "ui.sessions"
	EventConnection     = "ui.connection"
	EventPromptResolved = "prompt.resolved"
	EventShutdown       = "shutdown"
)
