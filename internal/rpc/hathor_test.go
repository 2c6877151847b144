package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

type fakeWallet struct {
	network string
	sendErr error
	sentTx  []wallet.NanoContractTx
	pins    []string
}

func (w *fakeWallet) IsReady(context.Context) bool { return true }
func (w *fakeWallet) Network() string              { return w.network }
func (w *fakeWallet) AddressAtIndex(_ context.Context, i int) (string, error) {
	return "Waddr", nil
}
func (w *fakeWallet) SignMessageWithAddress(_ context.Context, msg string, _ int, pin string) (wallet.SignedMessage, error) {
	w.pins = append(w.pins, pin)
	return wallet.SignedMessage{Message: msg, Signature: "sig", Address: "Waddr"}, nil
}
func (w *fakeWallet) SignOracleData(_ context.Context, nc, data, oracle, pin string) (wallet.SignedOracleData, error) {
	return wallet.SignedOracleData{Data: data, SignedData: "signed", Oracle: oracle}, nil
}
func (w *fakeWallet) SendNanoContractTx(_ context.Context, tx wallet.NanoContractTx, pin string) (json.RawMessage, error) {
	w.sentTx = append(w.sentTx, tx)
	if w.sendErr != nil {
		return nil, w.sendErr
	}
	return json.RawMessage(`{"hash":"00aa"}`), nil
}
func (w *fakeWallet) CreateToken(_ context.Context, p wallet.TokenParams, pin string) (json.RawMessage, error) {
	if w.sendErr != nil {
		return nil, w.sendErr
	}
	return json.RawMessage(`{"hash":"00bb"}`), nil
}

// script answers prompts from a fixed table and records the triggers seen.
type script struct {
	answers map[prompt.TriggerType]prompt.Response
	seen    []prompt.TriggerType
}

func (s *script) ask(_ context.Context, trig prompt.Trigger, _ RequestMetadata) (prompt.Response, error) {
	s.seen = append(s.seen, trig.Type)
	return s.answers[trig.Type], nil
}

func acceptAll() *script {
	pin := "1234"
	return &script{answers: map[prompt.TriggerType]prompt.Response{
		prompt.SignMessageWithAddressConfirmationPrompt: {Type: prompt.SignMessageWithAddressConfirmationResponse, Data: true},
		prompt.SignOracleDataConfirmationPrompt:         {Type: prompt.SignOracleDataConfirmationResponse, Data: true},
		prompt.SendNanoContractTxConfirmationPrompt:     {Type: prompt.SendNanoContractTxConfirmationResponse, Data: prompt.NanoTxConfirmation{Accepted: true}},
		prompt.CreateTokenConfirmationPrompt:            {Type: prompt.CreateTokenConfirmationResponse, Data: prompt.TokenConfirmation{Accepted: true}},
		prompt.PinConfirmationPrompt:                    {Type: prompt.PinRequestResponse, Data: prompt.PinResult{Accepted: true, PinCode: &pin}},
	}}
}

func request(method string, params interface{}) protocol.RPCRequest {
	raw, _ := json.Marshal(params)
	return protocol.RPCRequest{Method: method, Params: raw}
}

func TestSignWithAddress(t *testing.T) {
	w := &fakeWallet{network: "testnet"}
	s := acceptAll()
	resp, err := NewHathor().Handle(context.Background(),
		request(protocol.MethodHathorSignMessage, map[string]interface{}{"network": "testnet", "message": "hi", "addressIndex": 0}),
		w, RequestMetadata{}, s.ask)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Type != SignWithAddressResponse {
		t.Errorf("type = %s", resp.Type)
	}
	want := []prompt.TriggerType{prompt.SignMessageWithAddressConfirmationPrompt, prompt.PinConfirmationPrompt}
	if len(s.seen) != 2 || s.seen[0] != want[0] || s.seen[1] != want[1] {
		t.Errorf("prompts = %v", s.seen)
	}
	if len(w.pins) != 1 || w.pins[0] != "1234" {
		t.Errorf("pins = %v", w.pins)
	}
}

func TestRejections(t *testing.T) {
	w := &fakeWallet{network: "testnet"}

	s := acceptAll()
	s.answers[prompt.SignOracleDataConfirmationPrompt] = prompt.Response{Type: prompt.SignOracleDataConfirmationResponse, Data: false}
	_, err := NewHathor().Handle(context.Background(),
		request(protocol.MethodHathorSignOracleData, map[string]string{"network": "testnet", "nc_id": "00", "data": "d", "oracle": "o"}),
		w, RequestMetadata{}, s.ask)
	if !errors.Is(err, ErrPromptRejected) {
		t.Errorf("denied confirm: expected ErrPromptRejected, got %v", err)
	}

	s = acceptAll()
	s.answers[prompt.PinConfirmationPrompt] = prompt.Response{Type: prompt.PinRequestResponse, Data: prompt.PinResult{}}
	_, err = NewHathor().Handle(context.Background(),
		request(protocol.MethodHathorSignMessage, map[string]interface{}{"network": "testnet", "message": "hi"}),
		w, RequestMetadata{}, s.ask)
	if !errors.Is(err, ErrPromptRejected) {
		t.Errorf("cancelled pin: expected ErrPromptRejected, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	w := &fakeWallet{network: "testnet"}
	h := NewHathor()
	ctx := context.Background()

	tests := []struct {
		name string
		req  protocol.RPCRequest
		want error
	}{
		{"unknown method", request("htr_bogus", map[string]string{}), ErrUnsupportedMethod},
		{"no params", protocol.RPCRequest{Method: protocol.MethodHathorSignMessage}, ErrInvalidParams},
		{"wrong network", request(protocol.MethodHathorSignMessage, map[string]string{"network": "mainnet"}), ErrInvalidNetwork},
		{"missing network", request(protocol.MethodHathorSignMessage, map[string]string{"message": "x"}), ErrInvalidParams},
		{"nano without method", request(protocol.MethodHathorSendNanoTx, map[string]string{"network": "testnet"}), ErrInvalidParams},
		{"token without amount", request(protocol.MethodHathorCreateToken, map[string]string{"network": "testnet", "name": "T", "symbol": "T"}), ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(ctx, tt.req, w, RequestMetadata{}, acceptAll().ask)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	// chain-prefixed network is accepted
	if _, err := h.Handle(ctx,
		request(protocol.MethodHathorSignMessage, map[string]interface{}{"network": "hathor:testnet", "message": "m"}),
		w, RequestMetadata{}, acceptAll().ask); err != nil {
		t.Errorf("hathor:testnet rejected: %v", err)
	}
}

func TestSendNanoContractTxFlow(t *testing.T) {
	w := &fakeWallet{network: "testnet"}
	s := acceptAll()
	s.answers[prompt.SendNanoContractTxConfirmationPrompt] = prompt.Response{
		Type: prompt.SendNanoContractTxConfirmationResponse,
		Data: prompt.NanoTxConfirmation{Accepted: true, NC: json.RawMessage(`{"method":"bet","nc_id":"00cc"}`)},
	}

	resp, err := NewHathor().Handle(context.Background(),
		request(protocol.MethodHathorSendNanoTx, map[string]interface{}{"network": "testnet", "method": "bet", "nc_id": "00aa"}),
		w, RequestMetadata{}, s.ask)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Type != SendNanoContractTxResponse {
		t.Errorf("type = %s", resp.Type)
	}
	if len(w.sentTx) != 1 || w.sentTx[0].NcID != "00cc" {
		t.Errorf("edited nc not used: %+v", w.sentTx)
	}
	want := []prompt.TriggerType{
		prompt.SendNanoContractTxConfirmationPrompt,
		prompt.PinConfirmationPrompt,
		prompt.SendNanoContractTxLoadingTrigger,
		prompt.SendNanoContractTxLoadingFinishedTrigger,
	}
	if len(s.seen) != len(want) {
		t.Fatalf("prompts = %v", s.seen)
	}
	for i := range want {
		if s.seen[i] != want[i] {
			t.Errorf("prompt %d = %s, want %s", i, s.seen[i], want[i])
		}
	}
}

func TestWalletFailuresAreTyped(t *testing.T) {
	boom := errors.New("node unreachable")
	w := &fakeWallet{network: "testnet", sendErr: boom}
	h := NewHathor()

	_, err := h.Handle(context.Background(),
		request(protocol.MethodHathorSendNanoTx, map[string]interface{}{"network": "testnet", "method": "bet"}),
		w, RequestMetadata{}, acceptAll().ask)
	var nerr *SendNanoContractTxError
	if !errors.As(err, &nerr) || !errors.Is(err, boom) {
		t.Errorf("expected SendNanoContractTxError wrapping boom, got %v", err)
	}

	_, err = h.Handle(context.Background(),
		request(protocol.MethodHathorCreateToken, map[string]interface{}{"network": "testnet", "name": "T", "symbol": "TT", "amount": 10}),
		w, RequestMetadata{}, acceptAll().ask)
	var terr *CreateTokenError
	if !errors.As(err, &terr) {
		t.Errorf("expected CreateTokenError, got %v", err)
	}
}
