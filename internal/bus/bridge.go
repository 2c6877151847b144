package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// RelayEvent is one relay callback, republished on the bridge channel.
type RelayEvent struct {
	Name string
	Data json.RawMessage
}

// Bridge turns the relay's callback-style emitter into a single ordered
// channel the coordinator can select on.
type Bridge struct {
	events chan RelayEvent
	done   chan struct{}

	mu       sync.Mutex
	unsubs   []func()
	closed   bool
	inflight sync.WaitGroup
	once     sync.Once
}

// NewBridge subscribes to every relay event in protocol.RelayEvents.
// If any registration fails, the listeners registered so far are removed
// before the error is returned.
func NewBridge(src relay.Emitter, size int) (*Bridge, error) {
	if size <= 0 {
		size = 100
	}
	b := &Bridge{
		events: make(chan RelayEvent, size),
		done:   make(chan struct{}),
	}

	for _, name := range protocol.RelayEvents {
		name := name
		unsub, err := src.Subscribe(name, func(data json.RawMessage) {
			b.publish(RelayEvent{Name: name, Data: data})
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("subscribe %s: %w", name, err)
		}
		b.mu.Lock()
		b.unsubs = append(b.unsubs, unsub)
		b.mu.Unlock()
	}
	return b, nil
}

// publish blocks while the channel is full so arrival order is kept.
func (b *Bridge) publish(ev RelayEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		slog.Warn("bridge closed, dropping relay event", "event", ev.Name)
		return
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	select {
	case b.events <- ev:
	case <-b.done:
		slog.Warn("bridge closed, dropping relay event", "event", ev.Name)
	}
}

// Events returns the receive side of the bridge.
func (b *Bridge) Events() <-chan RelayEvent { return b.events }

// Next blocks until an event is available, the bridge closes, or ctx is cancelled.
func (b *Bridge) Next(ctx context.Context) (RelayEvent, bool) {
	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-ctx.Done():
		return RelayEvent{}, false
	}
}

// Close removes every listener the bridge registered, then closes the channel.
// Safe to call more than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}

	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.done)
		b.mu.Unlock()

		b.inflight.Wait()
		close(b.events)
	})
}
