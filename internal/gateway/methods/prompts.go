package methods

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// PromptMethods handles prompt.active, prompt.accept, prompt.reject.
type PromptMethods struct {
	bridge *prompt.Bridge
}

func NewPromptMethods(bridge *prompt.Bridge) *PromptMethods {
	return &PromptMethods{bridge: bridge}
}

func (m *PromptMethods) Register(router *gateway.MethodRouter) {
	router.RegisterReadOnly(protocol.MethodPromptActive, m.handleActive)
	router.Register(protocol.MethodPromptAccept, m.handleAccept)
	router.Register(protocol.MethodPromptReject, m.handleReject)
}

func (m *PromptMethods) handleActive(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	p, ok := m.bridge.Active()
	if !ok {
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
			"pending": nil,
		}))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"pending": p,
	}))
}

func (m *PromptMethods) handleAccept(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID      string          `json:"id"`
		Data    json.RawMessage `json:"data,omitempty"`
		PinCode string          `json:"pinCode,omitempty"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	m.resolve(client, req.ID, params.ID, prompt.Decision{Accept: true, Data: params.Data, PinCode: params.PinCode})
}

func (m *PromptMethods) handleReject(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID string `json:"id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	m.resolve(client, req.ID, params.ID, prompt.Decision{Accept: false})
}

func (m *PromptMethods) resolve(client *gateway.Client, reqID, promptID string, d prompt.Decision) {
	if promptID == "" {
		client.SendResponse(protocol.NewErrorResponse(reqID, protocol.ErrInvalidRequest, "id is required"))
		return
	}
	if err := m.bridge.Resolve(promptID, d); err != nil {
		code := protocol.ErrInternal
		if errors.Is(err, prompt.ErrNotFound) {
			code = protocol.ErrNotFound
		}
		client.SendResponse(protocol.NewErrorResponse(reqID, code, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(reqID, map[string]interface{}{
		"resolved": true,
		"accepted": d.Accept,
	}))
}
