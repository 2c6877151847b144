package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nextlevelbuilder/walletbridge/internal/config"
)

// isGatewayReachable reports whether the gateway answers its health endpoint.
func isGatewayReachable(cfg *config.Config) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(gatewayURL(cfg, "http", "/health"))
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// requireGateway exits with a hint when no gateway is running.
func requireGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if !isGatewayReachable(cfg) {
		fmt.Fprintf(os.Stderr, "Gateway is not running at %s.\n", gatewayURL(cfg, "http", ""))
		fmt.Fprintln(os.Stderr, "Start it with: walletbridge serve")
		os.Exit(1)
	}
}
