package methods

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/internal/config"
	"github.com/nextlevelbuilder/walletbridge/internal/coordinator"
	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/internal/rpc"
	"github.com/nextlevelbuilder/walletbridge/internal/store"
	"github.com/nextlevelbuilder/walletbridge/internal/store/file"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

type env struct {
	relay  *relay.Memory
	bridge *prompt.Bridge
	coord  *coordinator.Coordinator
	ledger store.LedgerStore
	conn   *websocket.Conn
	next   int
}

func setup(t *testing.T, withCoordinator bool) *env {
	t.Helper()
	mb := bus.New()
	hub := ui.NewHub(mb)
	bridge := prompt.NewBridge(hub, mb)
	r := relay.NewMemory()
	ledger, err := file.NewFileLedgerStore(filepath.Join(t.TempDir(), "responses.json"))
	if err != nil {
		t.Fatal(err)
	}

	var coord *coordinator.Coordinator
	if withCoordinator {
		coord, err = coordinator.New(coordinator.Deps{
			Relay:   r,
			Wallet:  wallet.NewHeadless(wallet.HeadlessConfig{Network: "testnet"}),
			Handler: rpc.NewHathor(),
			Prompts: bridge,
			UI:      hub,
			Ledger:  ledger,
		}, coordinator.Options{})
		if err != nil {
			t.Fatal(err)
		}
	}

	s := gateway.NewServer(config.GatewayConfig{}, mb, nil, hub)
	NewPromptMethods(bridge).Register(s.Router())
	NewSessionMethods(coord).Register(s.Router())
	NewPairMethods(coord).Register(s.Router())
	NewRequestMethods(ledger).Register(s.Router())
	NewUIMethods(hub).Register(s.Router())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx, ln)
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})

	e := &env{relay: r, bridge: bridge, coord: coord, ledger: ledger, conn: conn}
	if f := e.call(t, protocol.MethodConnect, nil); !f.OK {
		t.Fatalf("connect: %+v", f)
	}
	return e
}

type frame struct {
	Type    string               `json:"type"`
	ID      string               `json:"id"`
	OK      bool                 `json:"ok"`
	Payload json.RawMessage      `json:"payload"`
	Error   *protocol.ErrorShape `json:"error"`
}

func (e *env) call(t *testing.T, method string, params interface{}) frame {
	t.Helper()
	e.next++
	id := strconv.Itoa(e.next)
	raw, _ := json.Marshal(params)
	if err := e.conn.WriteJSON(protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: id, Method: method, Params: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		e.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var f frame
		if err := e.conn.ReadJSON(&f); err != nil {
			t.Fatalf("read %s: %v", method, err)
		}
		if f.Type == protocol.FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

func TestPromptAcceptWithPin(t *testing.T) {
	e := setup(t, false)

	if f := e.call(t, protocol.MethodPromptActive, nil); !f.OK || string(f.Payload) != `{"pending":null}` {
		t.Fatalf("active with no prompt = %+v (%s)", f, f.Payload)
	}

	result := make(chan prompt.Response, 1)
	go func() {
		resp, _ := e.bridge.Prompt(context.Background(), prompt.Trigger{Type: prompt.PinConfirmationPrompt}, prompt.Metadata{Topic: "t1"})
		result <- resp
	}()

	var pending prompt.Pending
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := e.bridge.Active(); ok {
			pending = p
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if pending.ID == "" {
		t.Fatal("prompt never became active")
	}

	f := e.call(t, protocol.MethodPromptActive, nil)
	var active struct {
		Pending prompt.Pending `json:"pending"`
	}
	json.Unmarshal(f.Payload, &active)
	if active.Pending.ID != pending.ID || active.Pending.Modal != ui.ModalPin {
		t.Errorf("active = %+v", active.Pending)
	}

	if f := e.call(t, protocol.MethodPromptAccept, map[string]string{"id": pending.ID, "pinCode": "1234"}); !f.OK {
		t.Fatalf("accept = %+v", f)
	}
	select {
	case resp := <-result:
		pin, ok := resp.Data.(prompt.PinResult)
		if !ok || !pin.Accepted || pin.PinCode == nil || *pin.PinCode != "1234" {
			t.Errorf("pin result = %+v", resp.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prompt not resolved")
	}
}

func TestPromptRejectUnknown(t *testing.T) {
	e := setup(t, false)
	f := e.call(t, protocol.MethodPromptReject, map[string]string{"id": "missing"})
	if f.OK || f.Error.Code != protocol.ErrNotFound {
		t.Errorf("reject unknown = %+v", f)
	}
	f = e.call(t, protocol.MethodPromptAccept, map[string]string{})
	if f.OK || f.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("accept without id = %+v", f)
	}
}

func TestSessionsListAndCancel(t *testing.T) {
	e := setup(t, true)
	e.relay.AddSession(relay.Session{Topic: "t1", Expiry: 1})

	f := e.call(t, protocol.MethodSessionsRefresh, nil)
	if !f.OK {
		t.Fatalf("refresh = %+v", f)
	}
	f = e.call(t, protocol.MethodSessionsList, nil)
	var list struct {
		Sessions []struct {
			Topic string `json:"topic"`
			State string `json:"state"`
		} `json:"sessions"`
	}
	json.Unmarshal(f.Payload, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].Topic != "t1" || list.Sessions[0].State != "ACTIVE" {
		t.Fatalf("sessions = %+v", list.Sessions)
	}

	if f := e.call(t, protocol.MethodSessionsCancel, map[string]string{}); f.OK {
		t.Error("cancel without topic should fail")
	}
	if f := e.call(t, protocol.MethodSessionsCancel, map[string]string{"topic": "t1"}); !f.OK {
		t.Fatalf("cancel = %+v", f)
	}
	if n := len(e.relay.CallsTo(protocol.SidecarDisconnect)); n != 1 {
		t.Errorf("disconnect calls = %d, want 1", n)
	}
	if e.coord.Sessions().Has("t1") {
		t.Error("t1 should be gone")
	}
}

func TestCoordinatorDisabled(t *testing.T) {
	e := setup(t, false)
	f := e.call(t, protocol.MethodSessionsCancel, map[string]string{"topic": "t1"})
	if f.OK || f.Error.Code != protocol.ErrFailedPrecondition {
		t.Errorf("cancel = %+v", f)
	}
	if f := e.call(t, protocol.MethodSessionsList, nil); !f.OK {
		t.Errorf("list = %+v", f)
	}
}

func TestPair(t *testing.T) {
	e := setup(t, true)
	if f := e.call(t, protocol.MethodPair, map[string]string{"uri": "http://nope"}); f.OK || f.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("bad uri = %+v", f)
	}
	f := e.call(t, protocol.MethodPair, map[string]string{"uri": "wc:abc@2?relay-protocol=irn"})
	if !f.OK {
		t.Fatalf("pair = %+v", f)
	}
	if string(f.Payload) != `{"state":"CONNECTED"}` {
		t.Errorf("payload = %s", f.Payload)
	}
}

func TestRequestsHistoryAndUIState(t *testing.T) {
	e := setup(t, false)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if _, err := e.ledger.RecordResponse(ctx, store.ResponseRecord{Topic: "t1", RequestID: i, Method: "htr_signWithAddress", Outcome: store.OutcomeSuccess, Attempts: 1}); err != nil {
			t.Fatal(err)
		}
	}

	f := e.call(t, protocol.MethodRequestsHistory, map[string]int{"limit": 2})
	var hist struct {
		Responses []store.ResponseRecord `json:"responses"`
	}
	json.Unmarshal(f.Payload, &hist)
	if len(hist.Responses) != 2 {
		t.Fatalf("history = %d records, want 2", len(hist.Responses))
	}
	if hist.Responses[0].RequestID != 3 {
		t.Errorf("newest first: got request %d", hist.Responses[0].RequestID)
	}

	f = e.call(t, protocol.MethodUIState, nil)
	var state ui.State
	json.Unmarshal(f.Payload, &state)
	if !f.OK || state.NanoContractStatus != ui.StatusReady {
		t.Errorf("ui.state = %+v", state)
	}
}
