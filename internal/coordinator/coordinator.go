// Package coordinator runs the dApp session-request flow.
//
// Relay callbacks are turned into events on a bounded channel (bus.Bridge).
// A dispatcher goroutine routes them in arrival order: deletions are handled
// at once, proposals and requests are queued for a single worker so at most
// one of them is being prompted at any time.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/internal/rpc"
	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/internal/store"
	"github.com/nextlevelbuilder/walletbridge/internal/tracing"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

const (
	defaultQueueSize  = 64
	defaultBridgeSize = 64
	defaultDedupeTTL  = 20 * time.Minute
	defaultDedupeMax  = 5000
	refreshKey        = "refresh"
)

// Prompter is the slice of prompt.Bridge the coordinator needs.
type Prompter interface {
	Prompt(ctx context.Context, trig prompt.Trigger, meta prompt.Metadata) (prompt.Response, error)
	CancelTopic(topic string) bool
	CancelAll() bool
}

// Deps are the collaborators. Ledger, State and Tracer may be nil.
type Deps struct {
	Relay    relay.Client
	Wallet   wallet.Wallet
	Handler  rpc.Handler
	Prompts  Prompter
	Sessions *sessions.Store
	UI       ui.Dispatcher
	Ledger   store.LedgerStore
	State    store.StateStore
	Tracer   *tracing.Collector
}

// Options tune the coordinator. Zero values pick defaults.
type Options struct {
	QueueSize       int
	BridgeSize      int
	MaxRetries      int           // 0 = ask the user every time
	PairTimeout     time.Duration // default 10s
	ExtendSchedule  string        // cron expression; empty disables the ticker
	RefreshDebounce time.Duration // 0 = refresh inline
	DedupeTTL       time.Duration
	Network         string // used in approved namespaces; default wallet.Network()
}

type job struct {
	request  *relay.SessionRequest
	proposal *relay.Proposal
}

// Coordinator owns the run loops and the session lifecycle.
type Coordinator struct {
	relay    relay.Client
	wallet   wallet.Wallet
	handler  rpc.Handler
	prompts  Prompter
	sessions *sessions.Store
	ui       ui.Dispatcher
	ledger   store.LedgerStore
	state    store.StateStore
	tracer   *tracing.Collector

	opts     Options
	governor *Governor
	dedupe   *bus.DedupeCache
	refresh  *bus.Debouncer
	work     chan job

	connMu sync.Mutex
	conn   ConnectionState

	netMu   sync.RWMutex
	network string

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wires a coordinator. It does not start anything.
func New(d Deps, opts Options) (*Coordinator, error) {
	if d.Relay == nil || d.Wallet == nil || d.Handler == nil || d.Prompts == nil {
		return nil, fmt.Errorf("coordinator: relay, wallet, handler and prompts are required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BridgeSize <= 0 {
		opts.BridgeSize = defaultBridgeSize
	}
	if opts.PairTimeout <= 0 {
		opts.PairTimeout = 10 * time.Second
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = defaultDedupeTTL
	}
	if opts.ExtendSchedule != "" && !gronx.New().IsValid(opts.ExtendSchedule) {
		return nil, fmt.Errorf("invalid extend schedule: %s", opts.ExtendSchedule)
	}
	if d.Sessions == nil {
		d.Sessions = sessions.NewStore()
	}
	if d.UI == nil {
		d.UI = ui.DispatcherFunc(func(ui.Action) {})
	}

	c := &Coordinator{
		relay:    d.Relay,
		wallet:   d.Wallet,
		handler:  d.Handler,
		prompts:  d.Prompts,
		sessions: d.Sessions,
		ui:       d.UI,
		ledger:   d.Ledger,
		state:    d.State,
		tracer:   d.Tracer,
		opts:     opts,
		governor: NewGovernor(d.Prompts, opts.MaxRetries),
		dedupe:   bus.NewDedupeCache(opts.DedupeTTL, defaultDedupeMax),
		refresh:  bus.NewDebouncer(opts.RefreshDebounce),
		work:     make(chan job, opts.QueueSize),
		conn:     ConnIdle,
		network:  opts.Network,
	}
	c.sessions.OnChange(func(entries []sessions.Entry) {
		c.ui.Dispatch(ui.SetSessions{Sessions: entries})
	})
	return c, nil
}

// Sessions returns the session store.
func (c *Coordinator) Sessions() *sessions.Store { return c.sessions }

// Network returns the network used for approved namespaces.
func (c *Coordinator) Network() string {
	c.netMu.RLock()
	n := c.network
	c.netMu.RUnlock()
	if n == "" {
		n = c.wallet.Network()
	}
	return n
}

func (c *Coordinator) setNetwork(n string) {
	c.netMu.Lock()
	c.network = n
	c.netMu.Unlock()
}

// Running reports whether Run is active.
func (c *Coordinator) Running() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

// Run subscribes to the relay, refreshes and extends the known sessions, then
// serves events until ctx ends or Shutdown is called.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.runMu.Unlock()

	defer func() {
		c.runMu.Lock()
		c.running = false
		c.cancel = nil
		close(done)
		c.runMu.Unlock()
	}()

	bridge, err := bus.NewBridge(c.relay, c.opts.BridgeSize)
	if err != nil {
		return fmt.Errorf("subscribe to relay: %w", err)
	}

	// Renew expiries of the sessions restored by the relay.
	if err := c.RefreshSessions(ctx, true); err != nil {
		slog.Warn("initial session refresh failed", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.dispatchLoop(ctx, bridge)
	}()
	go func() {
		defer wg.Done()
		c.workerLoop(ctx)
	}()
	if c.opts.ExtendSchedule != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.extendLoop(ctx)
		}()
	}

	c.CheckPending(ctx)
	slog.Info("coordinator started", "network", c.Network(), "sessions", c.sessions.Len())

	<-ctx.Done()

	bridge.Close()
	c.prompts.CancelAll()
	wg.Wait()
	c.refresh.Stop()
	slog.Info("coordinator stopped")
	return nil
}

// Shutdown disconnects every session and stops the run loops. Used when the
// feature is turned off or the wallet is reset.
func (c *Coordinator) Shutdown(ctx context.Context) {
	slog.Info("coordinator shutting down, clearing sessions")
	if err := c.ClearSessions(ctx); err != nil {
		slog.Warn("clear sessions on shutdown failed", "error", err)
	}

	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (c *Coordinator) dispatchLoop(ctx context.Context, bridge *bus.Bridge) {
	for {
		ev, ok := bridge.Next(ctx)
		if !ok {
			return
		}
		c.dispatch(ctx, ev)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, ev bus.RelayEvent) {
	switch ev.Name {
	case protocol.RelayEventSessionRequest:
		req, err := relay.DecodeRequest(ev.Data)
		if err != nil {
			slog.Warn("invalid session_request payload", "error", err)
			return
		}
		c.enqueueRequest(ctx, req)

	case protocol.RelayEventSessionProposal:
		p, err := relay.DecodeProposal(ev.Data)
		if err != nil {
			slog.Warn("invalid session_proposal payload", "error", err)
			return
		}
		slog.Info("session proposal received", "proposal_id", p.ID, "dapp", p.Params.Proposer.Metadata.Name)
		c.enqueue(ctx, job{proposal: &p})

	case protocol.RelayEventSessionDelete, protocol.RelayEventDisconnect:
		d, err := relay.DecodeDelete(ev.Data)
		if err != nil || d.Topic == "" {
			slog.Warn("invalid session delete payload", "event", ev.Name, "error", err)
			return
		}
		c.onSessionDeleted(ctx, d.Topic)

	default:
		slog.Debug("ignoring relay event", "event", ev.Name)
	}
}

func (c *Coordinator) enqueueRequest(ctx context.Context, req relay.SessionRequest) {
	key := bus.RequestKey(req.Topic, req.ID)
	if c.dedupe.IsDuplicate(key) {
		slog.Debug("duplicate session request dropped", "topic", req.Topic, "request_id", req.ID)
		return
	}
	slog.Info("session request received", "topic", req.Topic, "request_id", req.ID, "method", req.Params.Request.Method)
	c.enqueue(ctx, job{request: &req})
}

// enqueue blocks while the queue is full, until ctx ends.
func (c *Coordinator) enqueue(ctx context.Context, j job) {
	select {
	case c.work <- j:
	case <-ctx.Done():
	}
}

func (c *Coordinator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.work:
			switch {
			case j.request != nil:
				c.ProcessRequest(ctx, *j.request)
			case j.proposal != nil:
				c.HandleProposal(ctx, *j.proposal)
			}
		}
	}
}

// onSessionDeleted drops a session the dApp or relay closed. A prompt showing
// for it is denied, which ends the request without an answer.
func (c *Coordinator) onSessionDeleted(ctx context.Context, topic string) {
	slog.Info("session deleted", "topic", topic)
	c.sessions.Remove(topic)
	if c.prompts.CancelTopic(topic) {
		slog.Info("cancelled prompt of deleted session", "topic", topic)
	}
	if err := c.disconnectIfActive(ctx, topic, protocol.MsgUserCancelledSession); err != nil {
		slog.Warn("disconnect after session delete failed", "topic", topic, "error", err)
	}
	c.refresh.Push(refreshKey, func() {
		if err := c.RefreshSessions(ctx, false); err != nil {
			slog.Warn("session refresh failed", "error", err)
		}
	})
}

func (c *Coordinator) extendLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(c.opts.ExtendSchedule, time.Now(), false)
		if err != nil {
			slog.Error("extend schedule: failed to compute next tick", "expr", c.opts.ExtendSchedule, "error", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		slog.Debug("extend schedule tick")
		if err := c.RefreshSessions(ctx, true); err != nil {
			slog.Warn("scheduled session refresh failed", "error", err)
		}
		c.CheckPending(ctx)
	}
}
