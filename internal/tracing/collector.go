package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	defaultRecentSize    = 200
	errorMaxLen          = 500
)

// RequestSpan describes one dApp request from arrival to its relay answer.
type RequestSpan struct {
	ID        uuid.UUID `json:"id"`
	Topic     string    `json:"topic"`
	RequestID int64     `json:"request_id"`
	Method    string    `json:"method"`
	Outcome   string    `json:"outcome"` // "success", "rejected", "dropped"
	Attempts  int       `json:"attempts"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Error     string    `json:"error,omitempty"`
}

// Duration returns End - Start, or zero when the span never ended.
func (s RequestSpan) Duration() time.Duration {
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// SpanExporter is implemented by backends that receive request spans
// (e.g. OpenTelemetry OTLP). Keeping this as an interface lets the OTel
// dependency live in a separate sub-package behind a build tag.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []RequestSpan)
	Shutdown(ctx context.Context) error
}

// Collector buffers spans in memory and periodically hands them to the
// exporter in batches. The last few flushed spans are kept for inspection.
type Collector struct {
	spanCh chan RequestSpan
	stopCh chan struct{}
	wg     sync.WaitGroup

	flushInterval time.Duration
	exporter      SpanExporter // optional external exporter (nil = disabled)

	mu        sync.Mutex
	recent    []RequestSpan
	maxRecent int
	dropped   int
	stopOnce  sync.Once
}

// NewCollector creates a collector with a buffer of bufferSize spans
// (0 = default).
func NewCollector(bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		spanCh:        make(chan RequestSpan, bufferSize),
		stopCh:        make(chan struct{}),
		flushInterval: defaultFlushInterval,
		maxRecent:     defaultRecentSize,
	}
}

// SetExporter attaches an external span exporter. Call before Start.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// SetFlushInterval overrides the flush period. Call before Start.
func (c *Collector) SetFlushInterval(d time.Duration) {
	if d > 0 {
		c.flushInterval = d
	}
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("tracing collector started")
}

// Stop flushes remaining spans, then shuts down the exporter. Safe to call twice.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()

		if c.exporter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.exporter.Shutdown(ctx); err != nil {
				slog.Warn("tracing: span exporter shutdown failed", "error", err)
			}
		}
		slog.Info("tracing collector stopped")
	})
}

// Emit enqueues a span. Non-blocking: drops the span if the buffer is full.
// A nil collector ignores the call.
func (c *Collector) Emit(span RequestSpan) {
	if c == nil {
		return
	}
	if span.ID == uuid.Nil {
		span.ID = uuid.Must(uuid.NewV7())
	}
	if span.End.IsZero() {
		span.End = time.Now().UTC()
	}
	if len(span.Error) > errorMaxLen {
		span.Error = span.Error[:errorMaxLen] + "..."
	}

	select {
	case c.spanCh <- span:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		slog.Warn("tracing: span buffer full, dropping span",
			"method", span.Method, "topic", span.Topic, "request_id", span.RequestID)
	}
}

// Recent returns the most recently flushed spans, newest first.
func (c *Collector) Recent() []RequestSpan {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RequestSpan, len(c.recent))
	for i, s := range c.recent {
		out[len(c.recent)-1-i] = s
	}
	return out
}

// Dropped returns how many spans were discarded because the buffer was full.
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			// Drain remaining spans
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []RequestSpan
drain:
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			break drain
		}
	}
	if len(spans) == 0 {
		return
	}

	c.mu.Lock()
	c.recent = append(c.recent, spans...)
	if over := len(c.recent) - c.maxRecent; over > 0 {
		c.recent = append([]RequestSpan(nil), c.recent[over:]...)
	}
	c.mu.Unlock()

	slog.Debug("tracing: flushed spans", "count", len(spans))

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.exporter.ExportSpans(ctx, spans)
	}
}
