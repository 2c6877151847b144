package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// Hathor is the default handler for the htr_* methods.
type Hathor struct{}

// NewHathor creates the default handler.
func NewHathor() *Hathor { return &Hathor{} }

type signWithAddressParams struct {
	Network      string `json:"network"`
	Message      string `json:"message"`
	AddressIndex int    `json:"addressIndex"`
}

type signOracleDataParams struct {
	Network string `json:"network"`
	NcID    string `json:"nc_id"`
	Data    string `json:"data"`
	Oracle  string `json:"oracle"`
}

type sendNanoContractTxParams struct {
	Network string `json:"network"`
	wallet.NanoContractTx
}

type createTokenParams struct {
	Network string `json:"network"`
	wallet.TokenParams
}

// Handle dispatches on the request method.
func (h *Hathor) Handle(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error) {
	switch req.Method {
	case protocol.MethodHathorSignMessage:
		var p signWithAddressParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if err := checkNetwork(p.Network, w); err != nil {
			return nil, err
		}
		return h.signWithAddress(ctx, p, w, meta, ask)

	case protocol.MethodHathorSignOracleData:
		var p signOracleDataParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if err := checkNetwork(p.Network, w); err != nil {
			return nil, err
		}
		return h.signOracleData(ctx, p, w, meta, ask)

	case protocol.MethodHathorSendNanoTx:
		var p sendNanoContractTxParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if err := checkNetwork(p.Network, w); err != nil {
			return nil, err
		}
		if p.Method == "" {
			return nil, fmt.Errorf("%w: method is required", ErrInvalidParams)
		}
		return h.sendNanoContractTx(ctx, p.NanoContractTx, w, meta, ask)

	case protocol.MethodHathorCreateToken:
		var p createTokenParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if err := checkNetwork(p.Network, w); err != nil {
			return nil, err
		}
		if p.Name == "" || p.Symbol == "" || p.Amount <= 0 {
			return nil, fmt.Errorf("%w: name, symbol and a positive amount are required", ErrInvalidParams)
		}
		return h.createToken(ctx, p.TokenParams, w, meta, ask)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
}

func (h *Hathor) signWithAddress(ctx context.Context, p signWithAddressParams, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error) {
	address, err := w.AddressAtIndex(ctx, p.AddressIndex)
	if err != nil {
		return nil, fmt.Errorf("resolve address %d: %w", p.AddressIndex, err)
	}
	if err := confirm(ctx, ask, meta, prompt.SignMessageWithAddressConfirmationPrompt, map[string]interface{}{
		"address": address,
		"message": p.Message,
	}); err != nil {
		return nil, err
	}
	pin, err := askPin(ctx, ask, meta)
	if err != nil {
		return nil, err
	}
	signed, err := w.SignMessageWithAddress(ctx, p.Message, p.AddressIndex, pin)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return &Response{Type: SignWithAddressResponse, Response: signed}, nil
}

func (h *Hathor) signOracleData(ctx context.Context, p signOracleDataParams, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error) {
	if err := confirm(ctx, ask, meta, prompt.SignOracleDataConfirmationPrompt, map[string]interface{}{
		"ncId":   p.NcID,
		"data":   p.Data,
		"oracle": p.Oracle,
	}); err != nil {
		return nil, err
	}
	pin, err := askPin(ctx, ask, meta)
	if err != nil {
		return nil, err
	}
	signed, err := w.SignOracleData(ctx, p.NcID, p.Data, p.Oracle, pin)
	if err != nil {
		return nil, fmt.Errorf("sign oracle data: %w", err)
	}
	return &Response{Type: SignOracleDataResponse, Response: signed}, nil
}

func (h *Hathor) sendNanoContractTx(ctx context.Context, tx wallet.NanoContractTx, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error) {
	resp, err := ask(ctx, prompt.Trigger{Type: prompt.SendNanoContractTxConfirmationPrompt, Data: tx}, meta)
	if err != nil {
		return nil, err
	}
	c, ok := resp.Data.(prompt.NanoTxConfirmation)
	if !ok || !c.Accepted {
		return nil, ErrPromptRejected
	}
	if len(c.NC) > 0 {
		edited := tx
		if err := json.Unmarshal(c.NC, &edited); err != nil {
			return nil, fmt.Errorf("%w: edited nano contract: %v", ErrInvalidParams, err)
		}
		tx = edited
	}

	pin, err := askPin(ctx, ask, meta)
	if err != nil {
		return nil, err
	}

	if _, err := ask(ctx, prompt.Trigger{Type: prompt.SendNanoContractTxLoadingTrigger}, meta); err != nil {
		return nil, err
	}
	result, sendErr := w.SendNanoContractTx(ctx, tx, pin)
	if _, err := ask(ctx, prompt.Trigger{Type: prompt.SendNanoContractTxLoadingFinishedTrigger}, meta); err != nil {
		slog.Warn("rpc: loading finished trigger failed", "error", err)
	}
	if sendErr != nil {
		return nil, &SendNanoContractTxError{Err: sendErr}
	}
	return &Response{Type: SendNanoContractTxResponse, Response: result}, nil
}

func (h *Hathor) createToken(ctx context.Context, params wallet.TokenParams, w wallet.Wallet, meta RequestMetadata, ask PromptFunc) (*Response, error) {
	resp, err := ask(ctx, prompt.Trigger{Type: prompt.CreateTokenConfirmationPrompt, Data: params}, meta)
	if err != nil {
		return nil, err
	}
	c, ok := resp.Data.(prompt.TokenConfirmation)
	if !ok || !c.Accepted {
		return nil, ErrPromptRejected
	}
	if len(c.Token) > 0 {
		edited := params
		if err := json.Unmarshal(c.Token, &edited); err != nil {
			return nil, fmt.Errorf("%w: edited token: %v", ErrInvalidParams, err)
		}
		params = edited
	}

	pin, err := askPin(ctx, ask, meta)
	if err != nil {
		return nil, err
	}

	if _, err := ask(ctx, prompt.Trigger{Type: prompt.CreateTokenLoadingTrigger}, meta); err != nil {
		return nil, err
	}
	result, createErr := w.CreateToken(ctx, params, pin)
	if _, err := ask(ctx, prompt.Trigger{Type: prompt.CreateTokenLoadingFinishedTrigger}, meta); err != nil {
		slog.Warn("rpc: loading finished trigger failed", "error", err)
	}
	if createErr != nil {
		return nil, &CreateTokenError{Err: createErr}
	}
	return &Response{Type: CreateTokenResponse, Response: result}, nil
}

func confirm(ctx context.Context, ask PromptFunc, meta RequestMetadata, t prompt.TriggerType, data interface{}) error {
	resp, err := ask(ctx, prompt.Trigger{Type: t, Data: data}, meta)
	if err != nil {
		return err
	}
	if !resp.Accepted() {
		return ErrPromptRejected
	}
	return nil
}

func askPin(ctx context.Context, ask PromptFunc, meta RequestMetadata) (string, error) {
	resp, err := ask(ctx, prompt.Trigger{Type: prompt.PinConfirmationPrompt}, meta)
	if err != nil {
		return "", err
	}
	pin, ok := resp.Data.(prompt.PinResult)
	if !ok || !pin.Accepted || pin.PinCode == nil {
		return "", ErrPromptRejected
	}
	return *pin.PinCode, nil
}

func decodeParams(req protocol.RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("%w: %s has no params", ErrInvalidParams, req.Method)
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, req.Method, err)
	}
	return nil
}

// checkNetwork accepts "testnet" or "hathor:testnet" style values.
func checkNetwork(requested string, w wallet.Wallet) error {
	requested = strings.TrimPrefix(requested, protocol.HathorNamespace+":")
	if requested == "" {
		return fmt.Errorf("%w: network is required", ErrInvalidParams)
	}
	if requested != w.Network() {
		return fmt.Errorf("%w: requested %s, wallet on %s", ErrInvalidNetwork, requested, w.Network())
	}
	return nil
}
