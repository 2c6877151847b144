package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/internal/rpc"
	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/internal/store/file"
	"github.com/nextlevelbuilder/walletbridge/internal/tracing"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

type testWallet struct {
	mu      sync.Mutex
	ready   bool
	network string
	signed  int
}

func (w *testWallet) IsReady(context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}
func (w *testWallet) Network() string { return w.network }
func (w *testWallet) AddressAtIndex(_ context.Context, i int) (string, error) {
	return "Waddr0", nil
}
func (w *testWallet) SignMessageWithAddress(_ context.Context, msg string, _ int, pin string) (wallet.SignedMessage, error) {
	w.mu.Lock()
	w.signed++
	w.mu.Unlock()
	return wallet.SignedMessage{Message: msg, Signature: "sig", Address: "Waddr0"}, nil
}
func (w *testWallet) SignOracleData(_ context.Context, nc, data, oracle, pin string) (wallet.SignedOracleData, error) {
	return wallet.SignedOracleData{Data: data, SignedData: "signed", Oracle: oracle}, nil
}
func (w *testWallet) SendNanoContractTx(_ context.Context, tx wallet.NanoContractTx, pin string) (json.RawMessage, error) {
	return json.RawMessage(`{"hash":"00aa"}`), nil
}
func (w *testWallet) CreateToken(_ context.Context, p wallet.TokenParams, pin string) (json.RawMessage, error) {
	return json.RawMessage(`{"hash":"00bb"}`), nil
}

// scriptedUI records actions and answers modals through the prompt bridge.
// decide returning false leaves the modal open.
type scriptedUI struct {
	mu      sync.Mutex
	actions []ui.Action
	bridge  *prompt.Bridge
	decide  func(m ui.ShowModal) (prompt.Decision, bool)
	shown   chan ui.ShowModal
}

func (s *scriptedUI) Dispatch(a ui.Action) {
	s.mu.Lock()
	s.actions = append(s.actions, a)
	decide, b := s.decide, s.bridge
	s.mu.Unlock()

	m, ok := a.(ui.ShowModal)
	if !ok || m.PromptID == "" {
		return
	}
	select {
	case s.shown <- m:
	default:
	}
	if decide == nil {
		return
	}
	if d, answer := decide(m); answer {
		go b.Resolve(m.PromptID, d)
	}
}

func (s *scriptedUI) modals(t ui.ModalType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.actions {
		if m, ok := a.(ui.ShowModal); ok && m.Modal == t {
			n++
		}
	}
	return n
}

func (s *scriptedUI) hasStatus(flow ui.Flow, st ui.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if v, ok := a.(ui.SetStatus); ok && v.Flow == flow && v.Status == st {
			return true
		}
	}
	return false
}

type mapState struct {
	mu sync.Mutex
	m  map[string]string
}

func (s *mapState) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *mapState) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

type harness struct {
	c      *Coordinator
	relay  *relay.Memory
	wallet *testWallet
	ui     *scriptedUI
	state  *mapState
	ledger *file.FileLedgerStore
	tracer *tracing.Collector
}

func newHarness(t *testing.T, h rpc.Handler, opts Options) *harness {
	t.Helper()
	if h == nil {
		h = rpc.NewHathor()
	}
	r := relay.NewMemory()
	w := &testWallet{ready: true, network: "testnet"}
	sui := &scriptedUI{shown: make(chan ui.ShowModal, 16)}
	sui.bridge = prompt.NewBridge(sui, nil)
	st := &mapState{m: map[string]string{}}

	ledger, err := file.NewFileLedgerStore(filepath.Join(t.TempDir(), "responses.json"))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	tracer := tracing.NewCollector(64)
	tracer.SetFlushInterval(time.Hour)
	tracer.Start()
	t.Cleanup(tracer.Stop)

	c, err := New(Deps{
		Relay:   r,
		Wallet:  w,
		Handler: h,
		Prompts: sui.bridge,
		UI:      sui,
		Ledger:  ledger,
		State:   st,
		Tracer:  tracer,
	}, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{c: c, relay: r, wallet: w, ui: sui, state: st, ledger: ledger, tracer: tracer}
}

// spans stops the collector and returns the flushed spans, newest first.
func (h *harness) spans() []tracing.RequestSpan {
	h.tracer.Stop()
	return h.tracer.Recent()
}

func (h *harness) answer(fn func(m ui.ShowModal) (prompt.Decision, bool)) {
	h.ui.mu.Lock()
	h.ui.decide = fn
	h.ui.mu.Unlock()
}

func testSession(topic string) relay.Session {
	return relay.Session{
		Topic: topic,
		Peer:  relay.Peer{Metadata: relay.Metadata{Name: "dapp", URL: "https://dapp.example"}},
		Namespaces: map[string]relay.Namespace{
			protocol.HathorNamespace: {Chains: []string{"hathor:testnet"}},
		},
		Expiry: 1,
	}
}

func testRequest(topic string, id int64, method string, params interface{}) relay.SessionRequest {
	raw, _ := json.Marshal(params)
	return relay.SessionRequest{
		ID:     id,
		Topic:  topic,
		Params: relay.RequestParams{Request: protocol.RPCRequest{Method: method, Params: raw}},
	}
}

func testProposal(id int64) relay.Proposal {
	return relay.Proposal{
		ID: id,
		Params: relay.ProposalParams{
			Proposer: relay.Peer{Metadata: relay.Metadata{
				Name:  "Example dApp",
				URL:   "https://dapp.example",
				Icons: []string{"https://dapp.example/icon.png"},
			}},
			RequiredNamespaces: map[string]relay.Namespace{
				protocol.HathorNamespace: {Chains: []string{"hathor:testnet"}, Methods: []string{protocol.MethodHathorSignMessage}},
			},
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func acceptModals(ms ...ui.ModalType) func(m ui.ShowModal) (prompt.Decision, bool) {
	return func(m ui.ShowModal) (prompt.Decision, bool) {
		for _, t := range ms {
			if m.Modal == t {
				return prompt.Decision{Accept: true, PinCode: "1234"}, true
			}
		}
		return prompt.Decision{Accept: false}, true
	}
}

func nanoFailure() error {
	return &rpc.SendNanoContractTxError{Err: errors.New("tx rejected by full node")}
}

func TestApproveProposal(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.NextTopic = "t1"
	h.answer(acceptModals(ui.ModalConnect))

	h.c.HandleProposal(context.Background(), testProposal(7))

	e, ok := h.c.Sessions().Get("t1")
	if !ok || e.State != sessions.StateActive {
		t.Fatalf("session t1 = %+v, %v; want ACTIVE", e, ok)
	}
	if e.Peer.Metadata.Name != "Example dApp" {
		t.Errorf("peer name = %q", e.Peer.Metadata.Name)
	}
	if h.c.Sessions().Has(sessions.ProposalKey(7)) {
		t.Error("proposal key should be gone after promote")
	}

	calls := h.relay.CallsTo(protocol.SidecarApproveSession)
	if len(calls) != 1 {
		t.Fatalf("approve calls = %d, want 1", len(calls))
	}
	params := calls[0].Args.(relay.ApproveParams)
	ns := params.Namespaces[protocol.HathorNamespace]
	if len(ns.Accounts) != 1 || ns.Accounts[0] != "hathor:testnet:Waddr0" {
		t.Errorf("accounts = %v", ns.Accounts)
	}
	if len(ns.Chains) != 1 || ns.Chains[0] != "hathor:testnet" {
		t.Errorf("chains = %v", ns.Chains)
	}
	if len(ns.Methods) != len(protocol.HathorMethods) {
		t.Errorf("methods = %v", ns.Methods)
	}
	if params.RelayProtocol != "irn" {
		t.Errorf("relay protocol = %q", params.RelayProtocol)
	}

	if n := h.c.Sessions().Len(); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
	stored := e.Namespaces[protocol.HathorNamespace]
	if !reflect.DeepEqual(stored.Methods, ns.Methods) {
		t.Errorf("stored methods = %v, approved %v", stored.Methods, ns.Methods)
	}
	if len(stored.Events) != len(ns.Events) {
		t.Errorf("stored events = %v, approved %v", stored.Events, ns.Events)
	}
	for i := range ns.Events {
		if stored.Events[i] != ns.Events[i] {
			t.Errorf("stored events = %v, approved %v", stored.Events, ns.Events)
			break
		}
	}
}

func TestRejectProposal(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.answer(acceptModals())

	h.c.HandleProposal(context.Background(), testProposal(8))

	calls := h.relay.CallsTo(protocol.SidecarRejectSession)
	if len(calls) != 1 {
		t.Fatalf("reject calls = %d, want 1", len(calls))
	}
	reason := calls[0].Args.(relay.Reason)
	if reason.Code != protocol.CodeUserRejected || reason.Message != protocol.MsgUserRejectedSession {
		t.Errorf("reason = %+v", reason)
	}
	if h.c.Sessions().Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.c.Sessions().Len())
	}
}

func TestApproveFailureRejectsProposal(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.FailOn(protocol.SidecarApproveSession, errors.New("relay down"))
	h.answer(acceptModals(ui.ModalConnect))

	h.c.HandleProposal(context.Background(), testProposal(9))

	if n := len(h.relay.CallsTo(protocol.SidecarRejectSession)); n != 1 {
		t.Fatalf("reject calls = %d, want 1", n)
	}
	if h.c.Sessions().Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.c.Sessions().Len())
	}
}

func TestRequestSuccess(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalSignMessage, ui.ModalPin))

	h.c.ProcessRequest(context.Background(), testRequest("t1", 1, protocol.MethodHathorSignMessage,
		map[string]interface{}{"network": "testnet", "message": "hello", "addressIndex": 0}))

	resps := h.relay.Responses()
	if len(resps) != 1 {
		t.Fatalf("responses = %d, want 1", len(resps))
	}
	if resps[0].IsError() || resps[0].ID != 1 {
		t.Errorf("response = %+v", resps[0])
	}
	if h.wallet.signed != 1 {
		t.Errorf("signed = %d, want 1", h.wallet.signed)
	}
}

func TestPinCancelRejectsRequest(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalSignMessage))

	h.c.ProcessRequest(context.Background(), testRequest("t1", 2, protocol.MethodHathorSignMessage,
		map[string]interface{}{"network": "testnet", "message": "hello", "addressIndex": 0}))

	resps := h.relay.Responses()
	if len(resps) != 1 || !resps[0].IsError() {
		t.Fatalf("responses = %+v, want one error", resps)
	}
	if resps[0].Error.Code != protocol.CodeUserRejectedMethod || resps[0].Error.Message != protocol.MsgRejectedByUser {
		t.Errorf("error = %+v", resps[0].Error)
	}
	if h.wallet.signed != 0 {
		t.Error("wallet must not sign without a pin")
	}
}

func TestRetryThenSuccess(t *testing.T) {
	var calls int
	handler := rpc.HandlerFunc(func(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta rpc.RequestMetadata, ask rpc.PromptFunc) (*rpc.Response, error) {
		calls++
		if calls == 1 {
			return nil, nanoFailure()
		}
		return &rpc.Response{Type: rpc.SendNanoContractTxResponse, Response: map[string]string{"hash": "00aa"}}, nil
	})
	h := newHarness(t, handler, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalRetry))

	h.c.ProcessRequest(context.Background(), testRequest("t1", 3, protocol.MethodHathorSendNanoTx, nil))

	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
	resps := h.relay.Responses()
	if len(resps) != 1 || resps[0].IsError() {
		t.Fatalf("responses = %+v, want one success", resps)
	}
	if !h.ui.hasStatus(ui.FlowNanoContract, ui.StatusFailure) {
		t.Error("expected failure status before retry")
	}
	if !h.ui.hasStatus(ui.FlowNanoContract, ui.StatusSuccess) {
		t.Error("expected success status")
	}
}

func TestRetryDismissedRejects(t *testing.T) {
	handler := rpc.HandlerFunc(func(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta rpc.RequestMetadata, ask rpc.PromptFunc) (*rpc.Response, error) {
		return nil, nanoFailure()
	})
	h := newHarness(t, handler, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals())

	h.c.ProcessRequest(context.Background(), testRequest("t1", 4, protocol.MethodHathorSendNanoTx, nil))

	resps := h.relay.Responses()
	if len(resps) != 1 || !resps[0].IsError() {
		t.Fatalf("responses = %+v, want one error", resps)
	}
	if resps[0].Error.Code != protocol.CodeUserRejectedMethod {
		t.Errorf("code = %d", resps[0].Error.Code)
	}
	if n := h.ui.modals(ui.ModalRetry); n != 1 {
		t.Errorf("retry modals = %d, want 1", n)
	}
}

func TestMaxRetriesCap(t *testing.T) {
	var calls int
	handler := rpc.HandlerFunc(func(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta rpc.RequestMetadata, ask rpc.PromptFunc) (*rpc.Response, error) {
		calls++
		return nil, &rpc.CreateTokenError{Err: errors.New("no funds")}
	})
	h := newHarness(t, handler, Options{MaxRetries: 2})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalRetry))

	h.c.ProcessRequest(context.Background(), testRequest("t1", 5, protocol.MethodHathorCreateToken, nil))

	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
	if n := h.ui.modals(ui.ModalRetry); n != 2 {
		t.Errorf("retry modals = %d, want 2", n)
	}
	if resps := h.relay.Responses(); len(resps) != 1 || !resps[0].IsError() {
		t.Fatalf("responses = %+v, want one error", resps)
	}
}

func TestUnknownSessionDropped(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.c.ProcessRequest(context.Background(), testRequest("nope", 6, protocol.MethodHathorSignMessage, nil))
	if n := len(h.relay.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
}

func TestWalletNotReadyDropped(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.wallet.ready = false

	h.c.ProcessRequest(context.Background(), testRequest("t1", 7, protocol.MethodHathorSignMessage, nil))
	if n := len(h.relay.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
}

func TestLedgerPreventsDoubleAnswer(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalSignMessage, ui.ModalPin))

	req := testRequest("t1", 8, protocol.MethodHathorSignMessage,
		map[string]interface{}{"network": "testnet", "message": "hello", "addressIndex": 0})
	h.c.ProcessRequest(context.Background(), req)
	h.c.ProcessRequest(context.Background(), req)

	if n := len(h.relay.Responses()); n != 1 {
		t.Errorf("responses = %d, want 1", n)
	}
}

func TestSessionDeletedMidPrompt(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.c.ProcessRequest(ctx, testRequest("t1", 9, protocol.MethodHathorSignMessage,
			map[string]interface{}{"network": "testnet", "message": "hello", "addressIndex": 0}))
	}()

	select {
	case m := <-h.ui.shown:
		if m.Modal != ui.ModalSignMessage {
			t.Fatalf("modal = %s", m.Modal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prompt never shown")
	}

	h.c.onSessionDeleted(ctx, "t1")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request not released after session delete")
	}
	if n := len(h.relay.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
	if h.c.Sessions().Has("t1") {
		t.Error("t1 should be removed")
	}
}

func TestSessionDeletedBeforeRetry(t *testing.T) {
	var h *harness
	var calls int
	handler := rpc.HandlerFunc(func(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta rpc.RequestMetadata, ask rpc.PromptFunc) (*rpc.Response, error) {
		calls++
		h.c.onSessionDeleted(ctx, "t1")
		return nil, nanoFailure()
	})
	h = newHarness(t, handler, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalRetry))

	h.c.ProcessRequest(context.Background(), testRequest("t1", 12, protocol.MethodHathorSendNanoTx, nil))

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	if n := h.ui.modals(ui.ModalRetry); n != 0 {
		t.Errorf("retry modals = %d, want 0", n)
	}
	if n := len(h.relay.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
	if h.ui.hasStatus(ui.FlowNanoContract, ui.StatusSuccess) {
		t.Error("success status for a destroyed session")
	}
	spans := h.spans()
	if len(spans) != 1 || spans[0].Outcome != outcomeDropped {
		t.Errorf("spans = %+v, want one dropped", spans)
	}
}

func TestSuccessAfterSessionDeletedNotReported(t *testing.T) {
	var h *harness
	handler := rpc.HandlerFunc(func(ctx context.Context, req protocol.RPCRequest, w wallet.Wallet, meta rpc.RequestMetadata, ask rpc.PromptFunc) (*rpc.Response, error) {
		h.c.onSessionDeleted(ctx, "t1")
		return &rpc.Response{Type: rpc.SendNanoContractTxResponse, Response: map[string]string{"hash": "00aa"}}, nil
	})
	h = newHarness(t, handler, Options{})
	h.relay.AddSession(testSession("t1"))

	h.c.ProcessRequest(context.Background(), testRequest("t1", 13, protocol.MethodHathorSendNanoTx, nil))

	if n := len(h.relay.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
	if h.ui.hasStatus(ui.FlowNanoContract, ui.StatusSuccess) {
		t.Error("success status shown for an answer that was never sent")
	}
	spans := h.spans()
	if len(spans) != 1 || spans[0].Outcome != outcomeDropped {
		t.Errorf("spans = %+v, want one dropped", spans)
	}
}

func TestSendFailureLeavesRequestUnanswered(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalSignMessage, ui.ModalPin))
	h.relay.FailOn(protocol.SidecarRespondRequest, errors.New("socket closed"))
	ctx := context.Background()

	req := testRequest("t1", 14, protocol.MethodHathorSignMessage,
		map[string]interface{}{"network": "testnet", "message": "hello", "addressIndex": 0})
	h.c.ProcessRequest(ctx, req)

	if has, _ := h.ledger.HasResponded(ctx, "t1", 14); has {
		t.Fatal("unsent response left in the ledger")
	}
	if spans := h.spans(); len(spans) != 1 || spans[0].Outcome != outcomeDropped {
		t.Errorf("spans = %+v, want one dropped", spans)
	}

	h.relay.FailOn(protocol.SidecarRespondRequest, nil)
	h.c.ProcessRequest(ctx, req)

	if n := len(h.relay.Responses()); n != 2 {
		t.Errorf("respond calls = %d, want 2", n)
	}
	if has, _ := h.ledger.HasResponded(ctx, "t1", 14); !has {
		t.Error("answered request missing from the ledger")
	}
}

func TestNetworkChangeClearsSessions(t *testing.T) {
	h := newHarness(t, nil, Options{})
	ctx := context.Background()
	h.relay.AddSession(testSession("t1"))
	h.relay.AddSession(testSession("t2"))

	if err := h.c.NetworkChanged(ctx, "testnet", "genesis-a"); err != nil {
		t.Fatalf("first NetworkChanged: %v", err)
	}
	if n := len(h.relay.CallsTo(protocol.SidecarDisconnect)); n != 0 {
		t.Fatalf("first run disconnected %d sessions", n)
	}

	if err := h.c.NetworkChanged(ctx, "testnet", "genesis-a"); err != nil {
		t.Fatalf("same NetworkChanged: %v", err)
	}
	if n := len(h.relay.CallsTo(protocol.SidecarDisconnect)); n != 0 {
		t.Fatalf("unchanged network disconnected %d sessions", n)
	}

	if err := h.c.NetworkChanged(ctx, "testnet", "genesis-b"); err != nil {
		t.Fatalf("NetworkChanged: %v", err)
	}
	calls := h.relay.CallsTo(protocol.SidecarDisconnect)
	if len(calls) != 2 {
		t.Fatalf("disconnect calls = %d, want 2", len(calls))
	}
	for _, c := range calls {
		if r := c.Args.(relay.Reason); r.Code != protocol.CodeUserDisconnected {
			t.Errorf("reason = %+v", r)
		}
	}
	if h.c.Sessions().Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.c.Sessions().Len())
	}
	if v := h.state.m["genesis_hash"]; v != "genesis-b" {
		t.Errorf("persisted genesis = %q", v)
	}
}

func TestExtendFailureDisconnectsOnlyThatTopic(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.relay.AddSession(testSession("t2"))
	h.relay.FailOnTopic(protocol.SidecarExtendSession, "t2", errors.New("expired"))

	if err := h.c.RefreshSessions(context.Background(), true); err != nil {
		t.Fatalf("RefreshSessions: %v", err)
	}

	calls := h.relay.CallsTo(protocol.SidecarDisconnect)
	if len(calls) != 1 || calls[0].Topic != "t2" {
		t.Fatalf("disconnect calls = %+v, want only t2", calls)
	}
	if r := calls[0].Args.(relay.Reason); r.Message != protocol.MsgUnableToExtendSession {
		t.Errorf("reason = %+v", r)
	}
	e, ok := h.c.Sessions().Get("t1")
	if !ok || e.State != sessions.StateExtended {
		t.Errorf("t1 = %+v, %v; want EXTENDED", e, ok)
	}
	if h.c.Sessions().Has("t2") {
		t.Error("t2 should be gone")
	}
}

func TestCancelSession(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	ctx := context.Background()
	if err := h.c.RefreshSessions(ctx, false); err != nil {
		t.Fatal(err)
	}

	if err := h.c.CancelSession(ctx, "t1"); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	calls := h.relay.CallsTo(protocol.SidecarDisconnect)
	if len(calls) != 1 {
		t.Fatalf("disconnect calls = %d, want 1", len(calls))
	}
	if r := calls[0].Args.(relay.Reason); r.Message != protocol.MsgUserCancelledSession {
		t.Errorf("reason = %+v", r)
	}
	if h.c.Sessions().Has("t1") {
		t.Error("t1 should be gone")
	}

	// Unknown topic is a no-op.
	if err := h.c.CancelSession(ctx, "t1"); err != nil {
		t.Fatalf("second CancelSession: %v", err)
	}
	if n := len(h.relay.CallsTo(protocol.SidecarDisconnect)); n != 1 {
		t.Errorf("disconnect calls = %d, want 1", n)
	}
}

func TestPairTimeout(t *testing.T) {
	h := newHarness(t, nil, Options{PairTimeout: 30 * time.Millisecond})
	h.relay.OnPair(func(ctx context.Context, uri string) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := h.c.Pair(context.Background(), "wc:abc@2?relay-protocol=irn")
	if !errors.Is(err, ErrPairFailed) {
		t.Fatalf("err = %v, want ErrPairFailed", err)
	}
	if h.c.Connection() != ConnFailed {
		t.Errorf("connection = %s, want FAILED", h.c.Connection())
	}
}

func TestPairSuccess(t *testing.T) {
	h := newHarness(t, nil, Options{})
	if err := h.c.Pair(context.Background(), "wc:abc@2"); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if h.c.Connection() != ConnConnected {
		t.Errorf("connection = %s, want CONNECTED", h.c.Connection())
	}
}

func startRun(t *testing.T, h *harness) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.c.Run(ctx) }()
	waitFor(t, "coordinator running", func() bool {
		return h.c.Running() && h.relay.ListenerCount(protocol.RelayEventSessionRequest) > 0
	})
	return cancel, errCh
}

func stopRun(t *testing.T, cancel context.CancelFunc, errCh chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunDedupesRequests(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.answer(acceptModals(ui.ModalSignMessage, ui.ModalPin))
	cancel, errCh := startRun(t, h)

	req := testRequest("t1", 10, protocol.MethodHathorSignMessage,
		map[string]interface{}{"network": "testnet", "message": "hello", "addressIndex": 0})
	if err := h.relay.Emit(protocol.RelayEventSessionRequest, req); err != nil {
		t.Fatal(err)
	}
	if err := h.relay.Emit(protocol.RelayEventSessionRequest, req); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "response", func() bool { return len(h.relay.Responses()) >= 1 })
	time.Sleep(50 * time.Millisecond)
	if n := len(h.relay.Responses()); n != 1 {
		t.Errorf("responses = %d, want 1", n)
	}
	stopRun(t, cancel, errCh)
}

func TestRunProcessesPendingAndProposals(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.relay.AddSession(testSession("t1"))
	h.relay.AddPending(testRequest("t1", 11, protocol.MethodHathorSignMessage,
		map[string]interface{}{"network": "testnet", "message": "pending", "addressIndex": 0}))
	h.relay.NextTopic = "t9"
	h.answer(acceptModals(ui.ModalSignMessage, ui.ModalPin, ui.ModalConnect))
	cancel, errCh := startRun(t, h)

	waitFor(t, "pending response", func() bool { return len(h.relay.Responses()) == 1 })

	if err := h.relay.Emit(protocol.RelayEventSessionProposal, testProposal(12)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "approved session", func() bool { return h.c.Sessions().Has("t9") })

	if err := h.relay.Emit(protocol.RelayEventSessionDelete, relay.SessionDelete{ID: 1, Topic: "t9"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "deleted session", func() bool { return !h.c.Sessions().Has("t9") })

	stopRun(t, cancel, errCh)
	if h.c.Running() {
		t.Error("coordinator still running after cancel")
	}
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, nil, Options{})
	cancel, errCh := startRun(t, h)
	if err := h.c.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}
	stopRun(t, cancel, errCh)
}

func TestNewValidatesSchedule(t *testing.T) {
	_, err := New(Deps{
		Relay:   relay.NewMemory(),
		Wallet:  &testWallet{},
		Handler: rpc.NewHathor(),
		Prompts: prompt.NewBridge(ui.DispatcherFunc(func(ui.Action) {}), nil),
	}, Options{ExtendSchedule: "not a cron"})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
}
