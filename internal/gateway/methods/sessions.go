package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/walletbridge/internal/coordinator"
	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// SessionMethods handles sessions.list, sessions.cancel, sessions.refresh.
type SessionMethods struct {
	coord *coordinator.Coordinator
}

func NewSessionMethods(coord *coordinator.Coordinator) *SessionMethods {
	return &SessionMethods{coord: coord}
}

func (m *SessionMethods) Register(router *gateway.MethodRouter) {
	router.RegisterReadOnly(protocol.MethodSessionsList, m.handleList)
	router.Register(protocol.MethodSessionsCancel, m.handleCancel)
	router.Register(protocol.MethodSessionsRefresh, m.handleRefresh)
}

func (m *SessionMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	if m.coord == nil {
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
			"sessions": []any{},
		}))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"sessions": m.coord.Sessions().List(),
		"running":  m.coord.Running(),
	}))
}

func (m *SessionMethods) handleCancel(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	if !requireCoordinator(m.coord, client, req) {
		return
	}
	var params struct {
		Topic string `json:"topic"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Topic == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "topic is required"))
		return
	}
	if err := m.coord.CancelSession(ctx, params.Topic); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"topic":     params.Topic,
		"cancelled": true,
	}))
}

func (m *SessionMethods) handleRefresh(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	if !requireCoordinator(m.coord, client, req) {
		return
	}
	var params struct {
		Extend bool `json:"extend"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if err := m.coord.RefreshSessions(ctx, params.Extend); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"sessions": m.coord.Sessions().List(),
	}))
}

func requireCoordinator(c *coordinator.Coordinator, client *gateway.Client, req *protocol.RequestFrame) bool {
	if c == nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrFailedPrecondition, "session coordinator is disabled"))
		return false
	}
	return true
}
