package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/internal/config"
	"github.com/nextlevelbuilder/walletbridge/internal/coordinator"
	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/internal/gateway/methods"
	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/internal/relay/sidecar"
	"github.com/nextlevelbuilder/walletbridge/internal/rpc"
	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/internal/store"
	"github.com/nextlevelbuilder/walletbridge/internal/store/file"
	"github.com/nextlevelbuilder/walletbridge/internal/store/pg"
	"github.com/nextlevelbuilder/walletbridge/internal/store/sqlite"
	"github.com/nextlevelbuilder/walletbridge/internal/tracing"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/internal/wallet"
)

const traceBufferSize = 1000

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session coordinator and the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	setupLogger(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(cfg.Database)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	if stores.Close != nil {
		defer stores.Close()
	}

	rc, err := openRelay(ctx, cfg.Relay)
	if err != nil {
		return fmt.Errorf("open relay: %w", err)
	}
	defer rc.Close()

	w := wallet.NewHeadless(wallet.HeadlessConfig{
		BaseURL:   cfg.Wallet.URL,
		WalletID:  cfg.Wallet.ID,
		APIKey:    cfg.Wallet.APIKey,
		Network:   cfg.Wallet.Network,
		TimeoutMs: cfg.Wallet.TimeoutMs,
	})

	mb := bus.New()
	hub := ui.NewHub(mb)
	bridge := prompt.NewBridge(hub, mb)
	sess := sessions.NewStore()

	collector := tracing.NewCollector(traceBufferSize)
	initOTelExporter(ctx, cfg, collector)
	collector.Start()
	defer collector.Stop()

	coord, err := coordinator.New(coordinator.Deps{
		Relay:    rc,
		Wallet:   w,
		Handler:  rpc.NewHathor(),
		Prompts:  bridge,
		Sessions: sess,
		UI:       hub,
		Ledger:   stores.Ledger,
		State:    stores.State,
		Tracer:   collector,
	}, coordinatorOptions(cfg))
	if err != nil {
		return err
	}

	srv := gateway.NewServer(cfg.Gateway, mb, sess, hub)
	methods.NewPromptMethods(bridge).Register(srv.Router())
	methods.NewSessionMethods(coord).Register(srv.Router())
	methods.NewPairMethods(coord).Register(srv.Router())
	methods.NewRequestMethods(stores.Ledger).Register(srv.Router())
	methods.NewUIMethods(hub).Register(srv.Router())

	g, gctx := errgroup.WithContext(ctx)
	runner := &coordinatorRunner{coord: coord, parent: gctx}

	srv.SetStatusFunc(func() map[string]interface{} {
		return map[string]interface{}{
			"coordinator":   runner.running(),
			"connection":    coord.Connection(),
			"network":       coord.Network(),
			"spans_dropped": collector.Dropped(),
		}
	})

	g.Go(func() error {
		return srv.Start(gctx)
	})

	if ok, reason := cfg.CoordinatorEnabled(); ok {
		if err := coord.NetworkChanged(gctx, cfg.Wallet.Network, cfg.Wallet.GenesisHash); err != nil {
			slog.Warn("network check failed", "error", err)
		}
		runner.start()
	} else {
		slog.Info("coordinator disabled", "reason", reason)
	}

	watcher, err := config.NewWatcher(cfgPath, cfg)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		watcher.OnChange(func(prev, next *config.Config) {
			applyReload(gctx, prev, next, coord, runner, srv)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher start failed", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("walletbridge started", "gateway", srv.Addr(), "relay", cfg.Relay.Driver, "store", storeMode(cfg.Database))

	err = g.Wait()
	runner.wait()
	slog.Info("walletbridge stopped")
	return err
}

// applyReload reacts to config edits that do not need a restart.
func applyReload(ctx context.Context, prev, next *config.Config, coord *coordinator.Coordinator, runner *coordinatorRunner, srv *gateway.Server) {
	srv.SetConfig(next.Gateway)

	enabled, reason := next.CoordinatorEnabled()
	if !enabled {
		if runner.running() {
			slog.Info("coordinator turned off", "reason", reason)
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			coord.Shutdown(sctx)
			cancel()
		}
		return
	}

	if config.NetworkChanged(prev, next) {
		slog.Info("wallet network changed", "from", prev.Wallet.Network, "to", next.Wallet.Network)
		if err := coord.NetworkChanged(ctx, next.Wallet.Network, next.Wallet.GenesisHash); err != nil {
			slog.Warn("network change handling failed", "error", err)
		}
	}
	if !runner.running() {
		slog.Info("coordinator turned on")
		runner.start()
	}
}

// coordinatorRunner restarts Run after the coordinator was turned off and on.
type coordinatorRunner struct {
	coord  *coordinator.Coordinator
	parent context.Context
	wg     sync.WaitGroup
}

func (r *coordinatorRunner) start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.coord.Run(r.parent); err != nil {
			slog.Error("coordinator stopped with error", "error", err)
		}
	}()
}

func (r *coordinatorRunner) running() bool {
	return r.coord.Running()
}

func (r *coordinatorRunner) wait() {
	r.wg.Wait()
}

func coordinatorOptions(cfg *config.Config) coordinator.Options {
	return coordinator.Options{
		QueueSize:       cfg.Reown.QueueSize,
		MaxRetries:      cfg.Reown.MaxRetries,
		PairTimeout:     cfg.PairTimeout(),
		ExtendSchedule:  cfg.Reown.ExtendSchedule,
		RefreshDebounce: cfg.RefreshDebounce(),
		Network:         cfg.Wallet.Network,
	}
}

func storeMode(db config.DatabaseConfig) string {
	if db.Mode == "" {
		return "standalone"
	}
	return db.Mode
}

// openStores picks the ledger/state backend for the database mode.
func openStores(db config.DatabaseConfig) (*store.Stores, error) {
	dataDir := config.ExpandHome(db.DataDir)
	sc := store.StoreConfig{
		Mode:        storeMode(db),
		PostgresDSN: db.PostgresDSN,
		SQLitePath:  config.ExpandHome(db.SQLitePath),
		DataDir:     dataDir,
	}

	switch {
	case sc.IsManaged():
		return pg.NewPGStores(sc)
	case sc.Mode == "sqlite":
		if sc.SQLitePath == "" {
			sc.SQLitePath = filepath.Join(dataDir, "walletbridge.db")
		}
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return sqlite.NewSQLiteStores(sc)
	default:
		return file.NewFileStores(sc)
	}
}

// openRelay connects the configured relay driver.
func openRelay(ctx context.Context, rc config.RelayConfig) (relay.Client, error) {
	switch rc.Driver {
	case "memory":
		slog.Warn("using in-memory relay, no dApp will reach this wallet")
		return relay.NewMemory(), nil
	default:
		c, err := sidecar.DialWithRetry(ctx, rc.URL, rc.Token, sidecar.RetryConfig{MaxRetries: rc.DialRetries})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
