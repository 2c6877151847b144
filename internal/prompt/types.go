package prompt

import (
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/walletbridge/internal/ui"
)

// TriggerType is what the RPC handler asks the user (or the UI) for.
type TriggerType string

const (
	SignMessageWithAddressConfirmationPrompt TriggerType = "SignMessageWithAddressConfirmationPrompt"
	SignOracleDataConfirmationPrompt         TriggerType = "SignOracleDataConfirmationPrompt"
	SendNanoContractTxConfirmationPrompt     TriggerType = "SendNanoContractTxConfirmationPrompt"
	CreateTokenConfirmationPrompt            TriggerType = "CreateTokenConfirmationPrompt"
	PinConfirmationPrompt                    TriggerType = "PinConfirmationPrompt"

	SendNanoContractTxLoadingTrigger         TriggerType = "SendNanoContractTxLoadingTrigger"
	SendNanoContractTxLoadingFinishedTrigger TriggerType = "SendNanoContractTxLoadingFinishedTrigger"
	CreateTokenLoadingTrigger                TriggerType = "CreateTokenLoadingTrigger"
	CreateTokenLoadingFinishedTrigger        TriggerType = "CreateTokenLoadingFinishedTrigger"

	// RetryPrompt asks whether a failed wallet operation should be attempted again.
	RetryPrompt TriggerType = "RetryPrompt"
	// SessionProposalPrompt asks whether to open a session with a dApp.
	SessionProposalPrompt TriggerType = "SessionProposalPrompt"
)

// ResponseType tags a Response.
type ResponseType string

const (
	SignMessageWithAddressConfirmationResponse ResponseType = "SignMessageWithAddressConfirmationResponse"
	SignOracleDataConfirmationResponse         ResponseType = "SignOracleDataConfirmationResponse"
	SendNanoContractTxConfirmationResponse     ResponseType = "SendNanoContractTxConfirmationResponse"
	CreateTokenConfirmationResponse            ResponseType = "CreateTokenConfirmationResponse"
	PinRequestResponse                         ResponseType = "PinRequestResponse"
	RetryResponse                              ResponseType = "RetryResponse"
	SessionProposalResponse                    ResponseType = "SessionProposalResponse"
)

// Trigger is one prompt request.
type Trigger struct {
	Type TriggerType `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Metadata identifies who is asking.
type Metadata struct {
	Topic string  `json:"topic,omitempty"`
	Dapp  ui.Dapp `json:"dapp"`
}

// Response is the answer to a Trigger. Data depends on Type:
//
//	Sign*ConfirmationResponse, RetryResponse, SessionProposalResponse: bool
//	SendNanoContractTxConfirmationResponse: NanoTxConfirmation
//	CreateTokenConfirmationResponse: TokenConfirmation
//	PinRequestResponse: PinResult
//
// Loading triggers answer with the zero Response.
type Response struct {
	Type ResponseType `json:"type,omitempty"`
	Data interface{}  `json:"data,omitempty"`
}

// NanoTxConfirmation carries the (possibly user edited) nano contract.
type NanoTxConfirmation struct {
	Accepted bool            `json:"accepted"`
	NC       json.RawMessage `json:"nc,omitempty"`
}

// TokenConfirmation carries the (possibly user edited) token parameters.
type TokenConfirmation struct {
	Accepted bool            `json:"accepted"`
	Token    json.RawMessage `json:"token,omitempty"`
}

// PinResult is the answer to a PIN prompt. PinCode is nil unless accepted.
type PinResult struct {
	Accepted bool    `json:"accepted"`
	PinCode  *string `json:"pinCode"`
}

// Accepted reports whether the response is a positive answer.
func (r Response) Accepted() bool {
	switch d := r.Data.(type) {
	case bool:
		return d
	case NanoTxConfirmation:
		return d.Accepted
	case TokenConfirmation:
		return d.Accepted
	case PinResult:
		return d.Accepted
	}
	return false
}

// Decision is what a human sends back through the gateway.
type Decision struct {
	Accept  bool            `json:"accept"`
	Data    json.RawMessage `json:"data,omitempty"`
	PinCode string          `json:"pinCode,omitempty"`
}

// Pending describes the prompt awaiting an answer.
type Pending struct {
	ID        string       `json:"id"`
	Trigger   TriggerType  `json:"trigger"`
	Modal     ui.ModalType `json:"modal"`
	Topic     string       `json:"topic,omitempty"`
	Data      interface{}  `json:"data,omitempty"`
	Dapp      ui.Dapp      `json:"dapp"`
	CreatedAt time.Time    `json:"createdAt"`
}
