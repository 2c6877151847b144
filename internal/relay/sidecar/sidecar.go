// Package sidecar implements relay.Client against a WalletKit sidecar process.
//
// The sidecar owns pairing, session crypto and the relay socket. We talk to it
// over a websocket using the gateway frame format: our calls are "req" frames
// answered by "res" frames with the same id, and relay events arrive as
// "event" frames whose name is the relay event name.
package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

const (
	maxMessageSize = 1 << 20
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// ErrClosed is returned for calls made after the connection is gone.
var ErrClosed = errors.New("sidecar connection closed")

// CallError is a failed sidecar call.
type CallError struct {
	Method string
	Code   string
	Msg    string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("sidecar %s: %s: %s", e.Method, e.Code, e.Msg)
}

// inbound is any frame read from the sidecar, payload left raw.
type inbound struct {
	Type    string               `json:"type"`
	ID      string               `json:"id,omitempty"`
	OK      bool                 `json:"ok"`
	Event   string               `json:"event,omitempty"`
	Payload json.RawMessage      `json:"payload,omitempty"`
	Error   *protocol.ErrorShape `json:"error,omitempty"`
}

// Client is a relay.Client backed by a sidecar websocket.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan inbound
	listeners map[string]map[int]relay.Listener
	nextSub   int
	closed    bool
	done      chan struct{}
}

// Dial connects to the sidecar at url and performs the connect handshake.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial sidecar %s: %w", url, err)
	}
	c := &Client{
		conn:      conn,
		pending:   make(map[string]chan inbound),
		listeners: make(map[string]map[int]relay.Listener),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()

	params := map[string]interface{}{"token": token, "protocol": protocol.ProtocolVersion}
	if err := c.call(ctx, protocol.MethodConnect, params, nil); err != nil {
		c.Close()
		return nil, err
	}
	slog.Info("relay sidecar connected", "url", url)
	return c, nil
}

func (c *Client) readLoop() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("relay sidecar read error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f inbound
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("relay sidecar: malformed frame", "error", err)
			continue
		}
		switch f.Type {
		case protocol.FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case protocol.FrameTypeEvent:
			c.dispatch(f.Event, f.Payload)
		default:
			slog.Debug("relay sidecar: ignoring frame", "type", f.Type)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(event string, payload json.RawMessage) {
	c.mu.Lock()
	fns := make([]relay.Listener, 0, len(c.listeners[event]))
	for _, fn := range c.listeners[event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.conn.Close()
}

// call sends method and decodes the response payload into out (when non-nil).
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	id := uuid.NewString()
	ch := make(chan inbound, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: id, Method: method, Params: raw}
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case f, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if !f.OK {
			ce := &CallError{Method: method, Code: protocol.ErrInternal, Msg: "unknown error"}
			if f.Error != nil {
				ce.Code, ce.Msg = f.Error.Code, f.Error.Message
			}
			return ce
		}
		if out != nil && len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Subscribe registers fn for a relay event.
func (c *Client) Subscribe(event string, fn relay.Listener) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.listeners[event] == nil {
		c.listeners[event] = make(map[int]relay.Listener)
	}
	c.nextSub++
	id := c.nextSub
	c.listeners[event][id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners[event], id)
		c.mu.Unlock()
	}, nil
}

func (c *Client) ApproveSession(ctx context.Context, params relay.ApproveParams) (relay.Session, error) {
	var s relay.Session
	err := c.call(ctx, protocol.SidecarApproveSession, params, &s)
	return s, err
}

func (c *Client) RejectSession(ctx context.Context, id int64, reason relay.Reason) error {
	return c.call(ctx, protocol.SidecarRejectSession, map[string]interface{}{"id": id, "reason": reason}, nil)
}

func (c *Client) RespondSessionRequest(ctx context.Context, topic string, resp protocol.RPCResponse) error {
	return c.call(ctx, protocol.SidecarRespondRequest, map[string]interface{}{"topic": topic, "response": resp}, nil)
}

func (c *Client) GetActiveSessions(ctx context.Context) (map[string]relay.Session, error) {
	out := make(map[string]relay.Session)
	if err := c.call(ctx, protocol.SidecarActiveSessions, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ExtendSession(ctx context.Context, topic string) error {
	return c.call(ctx, protocol.SidecarExtendSession, map[string]string{"topic": topic}, nil)
}

func (c *Client) DisconnectSession(ctx context.Context, topic string, reason relay.Reason) error {
	return c.call(ctx, protocol.SidecarDisconnect, map[string]interface{}{"topic": topic, "reason": reason}, nil)
}

func (c *Client) Pair(ctx context.Context, uri string) error {
	return c.call(ctx, protocol.SidecarPair, map[string]string{"uri": uri}, nil)
}

func (c *Client) PendingSessionRequests(ctx context.Context) ([]relay.SessionRequest, error) {
	var out []relay.SessionRequest
	if err := c.call(ctx, protocol.SidecarPendingRequests, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown()
	return nil
}

var _ relay.Client = (*Client)(nil)
