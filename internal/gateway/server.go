// Package gateway is the websocket/HTTP surface UI clients and the CLI use to
// watch the coordinator and answer its prompts.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/internal/config"
	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

const busSubscriberID = "gateway"

// StatusFunc contributes extra fields to the status method.
type StatusFunc func() map[string]interface{}

// Server accepts gateway clients and fans UI events out to them.
type Server struct {
	eventPub *bus.MessageBus
	sessions *sessions.Store
	hub      *ui.Hub
	router   *MethodRouter
	limiter  *RateLimiter
	upgrader websocket.Upgrader

	cfgMu  sync.RWMutex
	cfg    config.GatewayConfig
	status StatusFunc

	mu      sync.RWMutex
	clients map[string]*Client

	httpServer *http.Server
	startedAt  time.Time
}

// NewServer creates a gateway server. sess and hub may be nil.
func NewServer(cfg config.GatewayConfig, mb *bus.MessageBus, sess *sessions.Store, hub *ui.Hub) *Server {
	s := &Server{
		eventPub: mb,
		sessions: sess,
		hub:      hub,
		cfg:      cfg,
		limiter:  NewRateLimiter(cfg.RateLimitRPM, 10),
		clients:  make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
	s.router = NewMethodRouter(s)
	return s
}

// Router returns the method router so method groups can register on it.
func (s *Server) Router() *MethodRouter { return s.router }

// SetConfig swaps the gateway config (token) after a reload.
func (s *Server) SetConfig(cfg config.GatewayConfig) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// SetStatusFunc registers extra status fields.
func (s *Server) SetStatusFunc(fn StatusFunc) {
	s.cfgMu.Lock()
	s.status = fn
	s.cfgMu.Unlock()
}

// Token returns the configured admin token.
func (s *Server) Token() string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Token
}

func (s *Server) statusFn() StatusFunc {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.status
}

// Addr returns the listen address from config.
func (s *Server) Addr() string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Handler builds the HTTP routes.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		s.handleWebSocket(ctx, w, req)
	})
	r.Route("/api", func(api chi.Router) {
		api.Use(s.requireToken)
		api.Get("/sessions", s.handleSessions)
		api.Get("/state", s.handleState)
	})
	return r
}

// Start serves until ctx ends. UI events from the bus are pushed to every
// authenticated client.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.eventPub != nil {
		s.eventPub.Subscribe(busSubscriberID, s.BroadcastEvent)
		defer s.eventPub.Unsubscribe(busSubscriberID)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.closeClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("gateway shutdown", "error", err)
		}
	}()

	slog.Info("gateway listening", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	s.limiter.Stop()
	if errors.Is(err, http.ErrServerClosed) {
		slog.Info("gateway stopped")
		return nil
	}
	return err
}

// BroadcastEvent sends event to every authenticated client.
func (s *Server) BroadcastEvent(event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.Authenticated() {
			c.SendEvent(event)
		}
	}
}

func (s *Server) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s)
	s.register(client)
	defer s.unregister(client)

	client.Run(ctx)
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	slog.Debug("gateway client registered", "client", c.id, "clients", s.ClientCount())
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.Close()
	s.limiter.Forget(c.id)
	slog.Debug("gateway client left", "client", c.id)
}

func (s *Server) closeClients() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	shutdown := protocol.NewEvent(protocol.EventShutdown, nil)
	for _, c := range clients {
		c.SendEvent(*shutdown)
		c.Close()
	}
}

// requireToken guards the HTTP API with the admin token as a bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.Token()
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			slog.Warn("gateway api unauthorized", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	list := []sessions.Entry{}
	if s.sessions != nil {
		list = s.sessions.List()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state := ui.InitialState()
	if s.hub != nil {
		state = s.hub.State()
	}
	writeJSON(w, http.StatusOK, state)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("gateway: write response failed", "error", err)
	}
}
