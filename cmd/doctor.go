package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walletbridge/internal/config"
	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage, gateway and wallet health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("walletbridge doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", gateway.Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Coordinator:")
	if ok, reason := cfg.CoordinatorEnabled(); ok {
		fmt.Printf("    %-12s enabled\n", "Status:")
	} else {
		fmt.Printf("    %-12s disabled (%s)\n", "Status:", reason)
	}
	fmt.Printf("    %-12s %s\n", "Network:", cfg.Wallet.Network)
	maxRetries := "unbounded"
	if cfg.Reown.MaxRetries > 0 {
		maxRetries = fmt.Sprint(cfg.Reown.MaxRetries)
	}
	fmt.Printf("    %-12s %s\n", "Retries:", maxRetries)

	fmt.Println()
	fmt.Println("  Storage:")
	checkStores(cfg.Database)

	fmt.Println()
	fmt.Println("  Services:")
	checkWallet(cfg.Wallet)
	checkEndpoint("Relay:", cfg.Relay.Driver+" "+cfg.Relay.URL, cfg.Relay.Driver != "")
	checkEndpoint("Gateway:", gatewayURL(cfg, "http", ""), isGatewayReachable(cfg))

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkStores(db config.DatabaseConfig) {
	stores, err := openStores(db)
	if err != nil {
		fmt.Printf("    %-12s %s: %v\n", "Backend:", storeMode(db), err)
		return
	}
	if stores.Close != nil {
		defer stores.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := stores.Ledger.ListResponses(ctx, 1); err != nil {
		fmt.Printf("    %-12s %s: %v\n", "Backend:", storeMode(db), err)
		return
	}
	fmt.Printf("    %-12s %s (OK)\n", "Backend:", storeMode(db))
}

func checkWallet(wc config.WalletConfig) {
	w := wallet.NewHeadless(wallet.HeadlessConfig{
		BaseURL:   wc.URL,
		WalletID:  wc.ID,
		APIKey:    wc.APIKey,
		Network:   wc.Network,
		TimeoutMs: 5000,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	checkEndpoint("Wallet:", wc.URL+" ("+wc.ID+")", w.IsReady(ctx))
}

func checkEndpoint(name, target string, ok bool) {
	status := "NOT READY"
	if ok {
		status = "OK"
	}
	fmt.Printf("    %-12s %s (%s)\n", name, target, status)
}
