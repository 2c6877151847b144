package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/internal/config"
	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// startGateway runs a gateway on a free port and points --config at a file
// describing it.
func startGateway(t *testing.T, token string) *config.Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	path := filepath.Join(t.TempDir(), "config.json5")
	raw := fmt.Sprintf(`{ gateway: { host: "127.0.0.1", port: %d, token: %q }, relay: { driver: "memory" } }`, port, token)
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	old := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = old })

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mb := bus.New()
	srv := gateway.NewServer(cfg.Gateway, mb, sessions.NewStore(), ui.NewHub(mb))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cfg
}

func TestGatewayRPC(t *testing.T) {
	cfg := startGateway(t, "admin-token")
	if !isGatewayReachable(cfg) {
		t.Fatal("gateway health check failed")
	}

	resp, err := gatewayRPC(protocol.MethodStatus, nil)
	if err != nil {
		t.Fatalf("gatewayRPC: %v", err)
	}
	if !resp.OK {
		t.Fatalf("status failed: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Payload)
	var status struct {
		Clients int `json:"clients"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatal(err)
	}
	if status.Clients < 1 {
		t.Errorf("clients = %d", status.Clients)
	}
}

func TestGatewayRPC_UnknownMethod(t *testing.T) {
	startGateway(t, "")
	resp, err := gatewayRPC("nope", nil)
	if err != nil {
		t.Fatalf("gatewayRPC: %v", err)
	}
	if resp.OK || resp.Error == nil || resp.Error.Code != protocol.ErrInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %+v", resp)
	}
}

func TestValidatePairURI(t *testing.T) {
	if err := validatePairURI("wc:abc@2?relay-protocol=irn&symKey=x"); err != nil {
		t.Errorf("valid uri rejected: %v", err)
	}
	if err := validatePairURI("https://example.com"); err == nil {
		t.Error("expected error for non-wc uri")
	}
}

func TestGatewayURL(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Host = "0.0.0.0"
	cfg.Gateway.Port = 18790
	if got := gatewayURL(cfg, "ws", "/ws"); got != "ws://127.0.0.1:18790/ws" {
		t.Errorf("got %q", got)
	}
}
