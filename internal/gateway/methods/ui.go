package methods

import (
	"context"

	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// UIMethods handles ui.state, which lets a client that just connected
// render without waiting for the next event.
type UIMethods struct {
	hub *ui.Hub
}

func NewUIMethods(hub *ui.Hub) *UIMethods {
	return &UIMethods{hub: hub}
}

func (m *UIMethods) Register(router *gateway.MethodRouter) {
	router.RegisterReadOnly(protocol.MethodUIState, m.handleState)
}

func (m *UIMethods) handleState(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, m.hub.State()))
}
