// Package prompt connects the RPC handler's prompt callbacks to a human.
//
// A confirmation prompt takes the single pending slot, shows a modal carrying
// a correlation id, and blocks until a gateway client resolves that id.
// Loading triggers only update a status and return at once.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

var modals = map[TriggerType]ui.ModalType{
	SignMessageWithAddressConfirmationPrompt: ui.ModalSignMessage,
	SignOracleDataConfirmationPrompt:         ui.ModalSignOracleData,
	SendNanoContractTxConfirmationPrompt:     ui.ModalSendNanoTx,
	CreateTokenConfirmationPrompt:            ui.ModalCreateToken,
	PinConfirmationPrompt:                    ui.ModalPin,
	RetryPrompt:                              ui.ModalRetry,
	SessionProposalPrompt:                    ui.ModalConnect,
}

var statuses = map[TriggerType]ui.SetStatus{
	SendNanoContractTxLoadingTrigger:         {Flow: ui.FlowNanoContract, Status: ui.StatusLoading},
	SendNanoContractTxLoadingFinishedTrigger: {Flow: ui.FlowNanoContract, Status: ui.StatusReady},
	CreateTokenLoadingTrigger:                {Flow: ui.FlowCreateToken, Status: ui.StatusLoading},
	CreateTokenLoadingFinishedTrigger:        {Flow: ui.FlowCreateToken, Status: ui.StatusReady},
}

type slot struct {
	Pending
	answer chan Decision
}

// Bridge holds at most one pending prompt.
type Bridge struct {
	ui  ui.Dispatcher
	bus *bus.MessageBus

	mu     sync.Mutex
	active *slot
}

// NewBridge creates a prompt bridge. mb may be nil.
func NewBridge(d ui.Dispatcher, mb *bus.MessageBus) *Bridge {
	return &Bridge{ui: d, bus: mb}
}

// Prompt shows trig to the user and waits for the answer.
// A denial is a normal Response, not an error. Errors are ErrBusy,
// ErrUnknownTrigger, or the ctx error.
func (b *Bridge) Prompt(ctx context.Context, trig Trigger, meta Metadata) (Response, error) {
	if st, ok := statuses[trig.Type]; ok {
		b.ui.Dispatch(st)
		return Response{}, nil
	}
	modal, ok := modals[trig.Type]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownTrigger, trig.Type)
	}

	s := &slot{
		Pending: Pending{
			ID:        uuid.NewString(),
			Trigger:   trig.Type,
			Modal:     modal,
			Topic:     meta.Topic,
			Data:      trig.Data,
			Dapp:      meta.Dapp,
			CreatedAt: time.Now(),
		},
		answer: make(chan Decision, 1),
	}

	b.mu.Lock()
	if b.active != nil {
		busy := b.active.ID
		b.mu.Unlock()
		slog.Warn("prompt rejected, slot busy", "trigger", trig.Type, "active_id", busy)
		return Response{}, ErrBusy
	}
	b.active = s
	b.mu.Unlock()

	slog.Info("prompt shown", "id", s.ID, "trigger", trig.Type, "topic", meta.Topic)
	b.ui.Dispatch(ui.ShowModal{Modal: modal, PromptID: s.ID, Data: trig.Data, Dapp: meta.Dapp})

	var d Decision
	select {
	case d = <-s.answer:
	case <-ctx.Done():
		b.release(s.ID)
		b.finish(s, false)
		return Response{}, ctx.Err()
	}
	b.finish(s, d.Accept)
	return buildResponse(trig, d), nil
}

// Resolve answers the pending prompt with id.
func (b *Bridge) Resolve(id string, d Decision) error {
	s := b.release(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.answer <- d
	return nil
}

// CancelTopic denies the pending prompt if it belongs to topic.
// Returns true if a prompt was cancelled.
func (b *Bridge) CancelTopic(topic string) bool {
	b.mu.Lock()
	s := b.active
	if s == nil || s.Topic != topic {
		b.mu.Unlock()
		return false
	}
	b.active = nil
	b.mu.Unlock()

	slog.Info("prompt cancelled", "id", s.ID, "topic", topic)
	s.answer <- Decision{Accept: false}
	return true
}

// CancelAll denies whatever prompt is pending.
func (b *Bridge) CancelAll() bool {
	b.mu.Lock()
	s := b.active
	b.active = nil
	b.mu.Unlock()
	if s == nil {
		return false
	}
	s.answer <- Decision{Accept: false}
	return true
}

// Active returns the pending prompt, if any.
func (b *Bridge) Active() (Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return Pending{}, false
	}
	return b.active.Pending, true
}

// release frees the slot if it holds id and returns the freed slot.
func (b *Bridge) release(id string) *slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil || b.active.ID != id {
		return nil
	}
	s := b.active
	b.active = nil
	return s
}

func (b *Bridge) finish(s *slot, accepted bool) {
	b.ui.Dispatch(ui.HideModal{PromptID: s.ID})
	slog.Info("prompt resolved", "id", s.ID, "trigger", s.Trigger, "accepted", accepted)
	if b.bus != nil {
		b.bus.Broadcast(*protocol.NewEvent(protocol.EventPromptResolved, map[string]interface{}{
			"id":       s.ID,
			"trigger":  s.Trigger,
			"accepted": accepted,
		}))
	}
}

func buildResponse(trig Trigger, d Decision) Response {
	switch trig.Type {
	case SignMessageWithAddressConfirmationPrompt:
		return Response{Type: SignMessageWithAddressConfirmationResponse, Data: d.Accept}
	case SignOracleDataConfirmationPrompt:
		return Response{Type: SignOracleDataConfirmationResponse, Data: d.Accept}
	case SendNanoContractTxConfirmationPrompt:
		c := NanoTxConfirmation{Accepted: d.Accept}
		if d.Accept {
			c.NC = payload(d.Data, trig.Data)
		}
		return Response{Type: SendNanoContractTxConfirmationResponse, Data: c}
	case CreateTokenConfirmationPrompt:
		c := TokenConfirmation{Accepted: d.Accept}
		if d.Accept {
			c.Token = payload(d.Data, trig.Data)
		}
		return Response{Type: CreateTokenConfirmationResponse, Data: c}
	case PinConfirmationPrompt:
		if !d.Accept || d.PinCode == "" {
			return Response{Type: PinRequestResponse, Data: PinResult{Accepted: false}}
		}
		pin := d.PinCode
		return Response{Type: PinRequestResponse, Data: PinResult{Accepted: true, PinCode: &pin}}
	case RetryPrompt:
		return Response{Type: RetryResponse, Data: d.Accept}
	case SessionProposalPrompt:
		return Response{Type: SessionProposalResponse, Data: d.Accept}
	}
	return Response{}
}

// payload prefers the user's edited data and falls back to what was shown.
func payload(edited json.RawMessage, shown interface{}) json.RawMessage {
	if len(edited) > 0 {
		return edited
	}
	if shown == nil {
		return nil
	}
	if raw, ok := shown.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(shown)
	if err != nil {
		slog.Warn("prompt: could not encode shown payload", "error", err)
		return nil
	}
	return data
}
