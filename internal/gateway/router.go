package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// Version is reported in the connect response and by the CLI.
var Version = "0.1.0"

// MethodHandler processes a single RPC method request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	readOnly map[string]bool
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		readOnly: make(map[string]bool),
		server:   server,
	}
	r.registerDefaults()
	return r
}

// Register adds a method handler that requires the admin role.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
	delete(r.readOnly, method)
}

// RegisterReadOnly adds a method handler viewers may call too.
func (r *MethodRouter) RegisterReadOnly(method string, handler MethodHandler) {
	r.handlers[method] = handler
	r.readOnly[method] = true
}

// CanAccess reports whether role may call method.
func (r *MethodRouter) CanAccess(role Role, method string) bool {
	return role == RoleAdmin || r.readOnly[method]
}

// Handle dispatches a request to the appropriate handler.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		slog.Warn("unknown method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrInvalidRequest,
			"unknown method: "+req.Method,
		))
		return
	}

	if req.Method != protocol.MethodConnect && !r.CanAccess(client.Role(), req.Method) {
		slog.Warn("permission denied", "method", req.Method, "role", client.Role(), "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrUnauthorized,
			"permission denied: insufficient role for "+req.Method,
		))
		return
	}

	slog.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

func (r *MethodRouter) registerDefaults() {
	r.RegisterReadOnly(protocol.MethodConnect, r.handleConnect)
	r.RegisterReadOnly(protocol.MethodHealth, r.handleHealth)
	r.RegisterReadOnly(protocol.MethodStatus, r.handleStatus)
}

// handleConnect authenticates the client. A matching token (or no token
// configured at all) grants admin; anything else connects as viewer.
func (r *MethodRouter) handleConnect(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		Token string `json:"token"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	role := RoleViewer
	configToken := r.server.Token()
	if configToken == "" || params.Token == configToken {
		role = RoleAdmin
	}
	client.authenticate(role)
	slog.Info("gateway client connected", "client", client.id, "role", role)

	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"protocol":  protocol.ProtocolVersion,
		"role":      string(role),
		"client_id": client.id,
		"server": map[string]interface{}{
			"name":    "walletbridge",
			"version": Version,
		},
	}))
}

func (r *MethodRouter) handleHealth(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"status": "ok",
	}))
}

func (r *MethodRouter) handleStatus(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	status := map[string]interface{}{
		"clients":   r.server.ClientCount(),
		"uptime_ms": time.Since(r.server.startedAt).Milliseconds(),
	}
	if r.server.sessions != nil {
		status["sessions"] = r.server.sessions.Len()
	}
	if fn := r.server.statusFn(); fn != nil {
		for k, v := range fn() {
			status[k] = v
		}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, status))
}
