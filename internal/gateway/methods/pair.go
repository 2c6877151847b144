package methods

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/walletbridge/internal/coordinator"
	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// PairMethods handles pair.
type PairMethods struct {
	coord *coordinator.Coordinator
}

func NewPairMethods(coord *coordinator.Coordinator) *PairMethods {
	return &PairMethods{coord: coord}
}

func (m *PairMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodPair, m.handlePair)
}

func (m *PairMethods) handlePair(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	if !requireCoordinator(m.coord, client, req) {
		return
	}
	var params struct {
		URI string `json:"uri"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if !strings.HasPrefix(params.URI, "wc:") {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "uri must be a wc: pairing uri"))
		return
	}

	if err := m.coord.Pair(ctx, params.URI); err != nil {
		resp := protocol.NewErrorResponse(req.ID, protocol.ErrUnavailable, err.Error())
		resp.Error.Retryable = true
		client.SendResponse(resp)
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"state": string(m.coord.Connection()),
	}))
}
