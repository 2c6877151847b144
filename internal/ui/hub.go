package ui

import (
	"log/slog"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// Hub is the production Dispatcher: it keeps the reduced State and
// broadcasts every action to gateway subscribers.
type Hub struct {
	store *Store
	bus   *bus.MessageBus
}

// NewHub creates a Hub. mb may be nil (state only, no broadcast).
func NewHub(mb *bus.MessageBus) *Hub {
	return &Hub{store: NewStore(), bus: mb}
}

// Dispatch applies a and broadcasts it.
func (h *Hub) Dispatch(a Action) {
	h.store.Apply(a)
	slog.Debug("ui action", "type", a.ActionType())
	if h.bus == nil {
		return
	}
	h.bus.Broadcast(*protocol.NewEvent(eventName(a), map[string]interface{}{
		"type":   a.ActionType(),
		"action": a,
	}))
}

// State returns the current UI state.
func (h *Hub) State() State {
	return h.store.Snapshot()
}

func eventName(a Action) string {
	switch a.(type) {
	case ShowModal, HideModal:
		return protocol.EventModal
	case SetStatus:
		return protocol.EventStatus
	case SetSessions:
		return protocol.EventSessions
	case SetConnection:
		return protocol.EventConnection
	default:
		return protocol.EventStatus
	}
}
