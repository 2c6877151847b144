// Package bus carries events inside walletbridge: relay callbacks into the
// coordinator (Bridge) and UI events out to gateway clients (MessageBus).
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// EventHandler receives broadcast events. Handlers must not block.
type EventHandler func(event protocol.EventFrame)

// MessageBus fans UI events out to subscribers (gateway clients, CLI watchers).
type MessageBus struct {
	seq atomic.Int64

	// Event subscribers (subscriber ID → handler)
	subscribers map[string]EventHandler
	subMu       sync.RWMutex
}

func New() *MessageBus {
	return &MessageBus{
		subscribers: make(map[string]EventHandler),
	}
}

// Subscribe registers an event subscriber under id, replacing any previous one.
func (mb *MessageBus) Subscribe(id string, handler EventHandler) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	mb.subscribers[id] = handler
}

// Unsubscribe removes an event subscriber.
func (mb *MessageBus) Unsubscribe(id string) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	delete(mb.subscribers, id)
}

// Subscribers returns the number of registered subscribers.
func (mb *MessageBus) Subscribers() int {
	mb.subMu.RLock()
	defer mb.subMu.RUnlock()
	return len(mb.subscribers)
}

// Broadcast stamps event with the next sequence number and sends it to all subscribers.
func (mb *MessageBus) Broadcast(event protocol.EventFrame) {
	event.Type = protocol.FrameTypeEvent
	event.Seq = mb.seq.Add(1)

	mb.subMu.RLock()
	defer mb.subMu.RUnlock()
	for _, handler := range mb.subscribers {
		handler(event)
	}
}
