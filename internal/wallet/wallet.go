// Package wallet is the handle walletbridge uses to reach the wallet SDK.
// Key management, signing and transaction building stay behind this interface.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotReady is returned by operations attempted before the wallet is loaded.
var ErrNotReady = errors.New("wallet is not ready")

// NanoAction is a deposit/withdrawal attached to a nano contract call.
type NanoAction struct {
	Type    string `json:"type"`
	Token   string `json:"token"`
	Amount  int64  `json:"amount"`
	Address string `json:"address,omitempty"`
}

// NanoContractTx describes a nano contract call to build and send.
type NanoContractTx struct {
	Method      string          `json:"method"`
	BlueprintID string          `json:"blueprint_id,omitempty"`
	NcID        string          `json:"nc_id,omitempty"`
	Actions     []NanoAction    `json:"actions,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	PushTx      bool            `json:"push_tx"`
}

// TokenParams describes a token to create.
type TokenParams struct {
	Name                              string   `json:"name"`
	Symbol                            string   `json:"symbol"`
	Amount                            int64    `json:"amount"`
	Address                           string   `json:"address,omitempty"`
	ChangeAddress                     string   `json:"change_address,omitempty"`
	CreateMint                        bool     `json:"create_mint"`
	MintAuthorityAddress              string   `json:"mint_authority_address,omitempty"`
	AllowExternalMintAuthorityAddress bool     `json:"allow_external_mint_authority_address,omitempty"`
	CreateMelt                        bool     `json:"create_melt"`
	MeltAuthorityAddress              string   `json:"melt_authority_address,omitempty"`
	AllowExternalMeltAuthorityAddress bool     `json:"allow_external_melt_authority_address,omitempty"`
	Data                              []string `json:"data,omitempty"`
	PushTx                            bool     `json:"push_tx"`
}

// SignedMessage is the result of signing a message with a wallet address.
type SignedMessage struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

// SignedOracleData is the result of signing oracle data for a nano contract.
type SignedOracleData struct {
	Data       string `json:"data"`
	SignedData string `json:"signedData"`
	Oracle     string `json:"oracle"`
}

// Wallet is the subset of the wallet SDK the coordinator and RPC handler use.
type Wallet interface {
	IsReady(ctx context.Context) bool
	AddressAtIndex(ctx context.Context, index int) (string, error)
	Network() string

	SignMessageWithAddress(ctx context.Context, message string, addressIndex int, pin string) (SignedMessage, error)
	SignOracleData(ctx context.Context, ncID, data, oracle, pin string) (SignedOracleData, error)
	SendNanoContractTx(ctx context.Context, tx NanoContractTx, pin string) (json.RawMessage, error)
	CreateToken(ctx context.Context, params TokenParams, pin string) (json.RawMessage, error)
}
