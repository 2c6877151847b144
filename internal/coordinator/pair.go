package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/walletbridge/internal/ui"
)

// ConnectionState tracks the pairing flow.
type ConnectionState string

const (
	ConnIdle       ConnectionState = "IDLE"
	ConnConnecting ConnectionState = "CONNECTING"
	ConnConnected  ConnectionState = "CONNECTED"
	ConnFailed     ConnectionState = "FAILED"
)

// Connection returns the current pairing state.
func (c *Coordinator) Connection() ConnectionState {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Coordinator) setConnection(st ConnectionState) {
	c.connMu.Lock()
	c.conn = st
	c.connMu.Unlock()
	c.ui.Dispatch(ui.SetConnection{State: string(st), Failed: st == ConnFailed})
}

// Pair asks the relay to pair with a dApp URI. The attempt is bounded by
// Options.PairTimeout; on failure the UI is told the connection failed.
func (c *Coordinator) Pair(ctx context.Context, uri string) error {
	c.setConnection(ConnConnecting)

	pctx, cancel := context.WithTimeout(ctx, c.opts.PairTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.relay.Pair(pctx, uri) }()

	var err error
	select {
	case err = <-errCh:
	case <-pctx.Done():
		err = pctx.Err()
	}
	if err != nil {
		slog.Warn("pairing failed", "error", err)
		c.setConnection(ConnFailed)
		return fmt.Errorf("%w: %w", ErrPairFailed, err)
	}

	slog.Info("paired with dapp")
	c.setConnection(ConnConnected)
	return nil
}
