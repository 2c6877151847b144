package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// Call is one recorded invocation on a Memory relay.
type Call struct {
	Method string
	Topic  string
	ID     int64
	Args   interface{}
}

// Memory is an in-process relay. It keeps sessions in a map, records every
// call, and lets callers emit events and inject failures.
type Memory struct {
	mu        sync.Mutex
	listeners map[string]map[int]Listener
	nextSub   int
	sessions  map[string]Session
	pending   []SessionRequest
	calls     []Call
	fail      map[string]error // method -> error returned on every call
	failTopic map[string]error // "method:topic" -> error
	pairHook  func(ctx context.Context, uri string) error
	proposers map[int64]Peer // proposal id -> proposer, learned from emitted proposals
	closed    bool

	// Topic assigned to the next approved session. Empty means "topic-<id>".
	NextTopic string
	// Expiry set on approve and extend (unix seconds).
	Expiry int64
}

// NewMemory creates an empty in-process relay.
func NewMemory() *Memory {
	return &Memory{
		listeners: make(map[string]map[int]Listener),
		sessions:  make(map[string]Session),
		fail:      make(map[string]error),
		failTopic: make(map[string]error),
		proposers: make(map[int64]Peer),
		Expiry:    1,
	}
}

// Subscribe registers fn for event.
func (m *Memory) Subscribe(event string, fn Listener) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["subscribe:"+event]; err != nil {
		return nil, err
	}
	if m.listeners[event] == nil {
		m.listeners[event] = make(map[int]Listener)
	}
	m.nextSub++
	id := m.nextSub
	m.listeners[event][id] = fn
	return func() {
		m.mu.Lock()
		delete(m.listeners[event], id)
		m.mu.Unlock()
	}, nil
}

// ListenerCount returns how many listeners are registered for event.
func (m *Memory) ListenerCount(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[event])
}

// Emit delivers payload to every listener of event, synchronously.
// Emitted proposals are remembered so an approved session carries the
// proposer's metadata.
func (m *Memory) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	m.mu.Lock()
	if event == protocol.RelayEventSessionProposal {
		if p, err := DecodeProposal(data); err == nil {
			m.proposers[p.ID] = p.Params.Proposer
		}
	}
	fns := make([]Listener, 0, len(m.listeners[event]))
	ids := make([]int, 0, len(m.listeners[event]))
	for id := range m.listeners[event] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, m.listeners[event][id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
	return nil
}

// FailOn makes every call to method return err. A nil err clears it.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

// FailOnTopic makes calls to method for one topic return err.
func (m *Memory) FailOnTopic(method, topic string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTopic[method+":"+topic] = err
}

// OnPair replaces the default Pair behavior.
func (m *Memory) OnPair(fn func(ctx context.Context, uri string) error) {
	m.mu.Lock()
	m.pairHook = fn
	m.mu.Unlock()
}

// AddSession seeds an active session.
func (m *Memory) AddSession(s Session) {
	m.mu.Lock()
	m.sessions[s.Topic] = s
	m.mu.Unlock()
}

// AddPending queues a request returned by PendingSessionRequests.
func (m *Memory) AddPending(r SessionRequest) {
	m.mu.Lock()
	m.pending = append(m.pending, r)
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls for one method.
func (m *Memory) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Responses returns every envelope sent through RespondSessionRequest.
func (m *Memory) Responses() []protocol.RPCResponse {
	var out []protocol.RPCResponse
	for _, c := range m.CallsTo(protocol.SidecarRespondRequest) {
		out = append(out, c.Args.(protocol.RPCResponse))
	}
	return out
}

// record appends a call and returns the injected failure for it, if any.
// Must be called with m.mu held.
func (m *Memory) record(c Call) error {
	m.calls = append(m.calls, c)
	if m.closed {
		return fmt.Errorf("relay closed")
	}
	if err := m.failTopic[c.Method+":"+c.Topic]; err != nil {
		return err
	}
	return m.fail[c.Method]
}

func (m *Memory) ApproveSession(_ context.Context, params ApproveParams) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Method: protocol.SidecarApproveSession, ID: params.ID, Args: params}); err != nil {
		return Session{}, err
	}
	topic := m.NextTopic
	if topic == "" {
		topic = fmt.Sprintf("topic-%d", params.ID)
	}
	s := Session{
		Topic:      topic,
		Peer:       m.proposers[params.ID],
		Namespaces: params.Namespaces,
		Expiry:     m.Expiry,
	}
	m.sessions[topic] = s
	slog.Debug("memory relay: session approved", "topic", topic, "proposal_id", params.ID)
	return s, nil
}

func (m *Memory) RejectSession(_ context.Context, id int64, reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(Call{Method: protocol.SidecarRejectSession, ID: id, Args: reason})
}

func (m *Memory) RespondSessionRequest(_ context.Context, topic string, resp protocol.RPCResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(Call{Method: protocol.SidecarRespondRequest, Topic: topic, ID: resp.ID, Args: resp})
}

func (m *Memory) GetActiveSessions(_ context.Context) (map[string]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Method: protocol.SidecarActiveSessions}); err != nil {
		return nil, err
	}
	out := make(map[string]Session, len(m.sessions))
	for k, v := range m.sessions {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) ExtendSession(_ context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Method: protocol.SidecarExtendSession, Topic: topic}); err != nil {
		return err
	}
	s, ok := m.sessions[topic]
	if !ok {
		return fmt.Errorf("no session for topic %s", topic)
	}
	m.Expiry++
	s.Expiry = m.Expiry
	m.sessions[topic] = s
	return nil
}

func (m *Memory) DisconnectSession(_ context.Context, topic string, reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Method: protocol.SidecarDisconnect, Topic: topic, Args: reason}); err != nil {
		return err
	}
	delete(m.sessions, topic)
	return nil
}

func (m *Memory) Pair(ctx context.Context, uri string) error {
	m.mu.Lock()
	err := m.record(Call{Method: protocol.SidecarPair, Args: uri})
	hook := m.pairHook
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx, uri)
	}
	return nil
}

func (m *Memory) PendingSessionRequests(_ context.Context) ([]SessionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Method: protocol.SidecarPendingRequests}); err != nil {
		return nil, err
	}
	out := make([]SessionRequest, len(m.pending))
	copy(out, m.pending)
	return out, nil
}

// Close marks the relay closed; later calls fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
