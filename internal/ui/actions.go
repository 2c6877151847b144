// Package ui is the boundary to the presentation layer. The coordinator and
// prompt bridge dispatch Actions; the Hub reduces them into State and pushes
// them to gateway clients as events. Nothing else crosses into the UI.
package ui

import "github.com/nextlevelbuilder/walletbridge/internal/sessions"

// ModalType names the modal the UI should display.
type ModalType string

const (
	ModalConnect        ModalType = "CONNECT"
	ModalSignMessage    ModalType = "SIGN_MESSAGE"
	ModalSignOracleData ModalType = "SIGN_ORACLE_DATA"
	ModalSendNanoTx     ModalType = "SEND_NANO_CONTRACT_TX"
	ModalCreateToken    ModalType = "CREATE_TOKEN"
	ModalPin            ModalType = "PIN"
	ModalRetry          ModalType = "RETRY"
)

// Flow is a long-running wallet operation with a visible status.
type Flow string

const (
	FlowNanoContract Flow = "nano_contract"
	FlowCreateToken  Flow = "create_token"
)

// Status of a Flow.
type Status string

const (
	StatusReady   Status = "ready"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Dapp is what the UI shows about the requesting dApp.
type Dapp struct {
	Icon        string `json:"icon"`
	Proposer    string `json:"proposer"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Chain       string `json:"chain,omitempty"`
}

// Action is anything the UI can be told to do.
type Action interface {
	ActionType() string
}

// ShowModal opens a modal. PromptID is set when the modal expects an answer.
type ShowModal struct {
	Modal    ModalType   `json:"modal"`
	PromptID string      `json:"promptId,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Dapp     Dapp        `json:"dapp"`
}

// HideModal closes the current modal.
type HideModal struct {
	PromptID string `json:"promptId,omitempty"`
}

// SetStatus updates the status of a Flow.
type SetStatus struct {
	Flow   Flow   `json:"flow"`
	Status Status `json:"status"`
}

// SetSessions replaces the session list.
type SetSessions struct {
	Sessions []sessions.Entry `json:"sessions"`
}

// SetConnection reports the pairing state.
type SetConnection struct {
	State  string `json:"state"`
	Failed bool   `json:"failed"`
}

func (ShowModal) ActionType() string     { return "show_modal" }
func (HideModal) ActionType() string     { return "hide_modal" }
func (SetStatus) ActionType() string     { return "set_status" }
func (SetSessions) ActionType() string   { return "set_sessions" }
func (SetConnection) ActionType() string { return "set_connection" }

// Dispatcher accepts UI actions.
type Dispatcher interface {
	Dispatch(a Action)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(a Action)

func (f DispatcherFunc) Dispatch(a Action) { f(a) }
