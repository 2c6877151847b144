package bus

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid calls sharing a key into one trailing call.
// The coordinator uses it to collapse the session refreshes triggered by a
// burst of session_delete events into a single relay round trip.
type Debouncer struct {
	window time.Duration
	mu     sync.Mutex
	timers map[string]*debounceEntry
}

type debounceEntry struct {
	timer *time.Timer
	fn    func()
	count int
}

// NewDebouncer creates a debouncer with the given window.
// If window <= 0, calls run immediately (debouncing disabled).
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		timers: make(map[string]*debounceEntry),
	}
}

// Push schedules fn under key, replacing any fn already waiting for it.
// fn fires after window of silence for that key.
func (d *Debouncer) Push(key string, fn func()) {
	if d.window <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, exists := d.timers[key]
	if !exists {
		e = &debounceEntry{}
		d.timers[key] = e
	}
	e.fn = fn
	e.count++

	// Reset timer, fires after window of silence.
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(d.window, func() {
		d.flushKey(key)
	})

	if e.count > 1 {
		slog.Debug("debounce: call coalesced", "key", key, "pending", e.count)
	}
}

// Stop runs every pending call immediately (graceful shutdown).
func (d *Debouncer) Stop() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.timers))
	for k := range d.timers {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	for _, key := range keys {
		d.flushKey(key)
	}
}

func (d *Debouncer) flushKey(key string) {
	d.mu.Lock()
	e, exists := d.timers[key]
	if !exists {
		d.mu.Unlock()
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(d.timers, key)
	d.mu.Unlock()

	if e.count > 1 {
		slog.Debug("debounce: flushing coalesced calls", "key", key, "count", e.count)
	}
	e.fn()
}
