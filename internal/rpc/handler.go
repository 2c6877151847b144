// Package rpc turns a dApp JSON-RPC request into prompts and wallet calls.
package rpc

import (
	"context"

	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// RequestMetadata describes the dApp and session a request came from.
type RequestMetadata = prompt.Metadata

// PromptFunc asks the user something on behalf of the handler.
type PromptFunc func(ctx context.Context, trig prompt.Trigger, meta RequestMetadata) (prompt.Response, error)

// ResponseType tags a handler Response.
type ResponseType string

const (
	SendNanoContractTxResponse ResponseType = "SendNanoContractTxResponse"
	CreateTokenResponse        ResponseType = "CreateTokenResponse"
	SignWithAddressResponse    ResponseType = "SignWithAddressResponse"
	SignOracleDataResponse     ResponseType = "SignOracleDataResponse"
)

// Response is the result sent back to the dApp as the JSON-RPC result.
type Response struct {
	Type     ResponseType `json:"type"`
	Response interface{}  `json:"response"`
}

// Handler processes one dApp request.
type Handler interface {
	Handle(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error)

func (f HandlerFunc) Handle(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error) {
	return f(ctx, req, w, meta, ask)
}
