package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/internal/store"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// RequestMethods handles requests.history.
type RequestMethods struct {
	ledger store.LedgerStore
}

func NewRequestMethods(ledger store.LedgerStore) *RequestMethods {
	return &RequestMethods{ledger: ledger}
}

func (m *RequestMethods) Register(router *gateway.MethodRouter) {
	router.RegisterReadOnly(protocol.MethodRequestsHistory, m.handleHistory)
}

func (m *RequestMethods) handleHistory(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Limit int `json:"limit"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if m.ledger == nil {
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
			"responses": []any{},
		}))
		return
	}
	records, err := m.ledger.ListResponses(ctx, limit)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	if records == nil {
		records = []store.ResponseRecord{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"responses": records,
	}))
}
