package file

import (
	"fmt"
	"path/filepath"

	"github.com/nextlevelbuilder/walletbridge/internal/store"
)

// NewFileStores creates all stores backed by JSON files in cfg.DataDir (standalone mode).
func NewFileStores(cfg store.StoreConfig) (*store.Stores, error) {
	ledger, err := NewFileLedgerStore(filepath.Join(cfg.DataDir, "responses.json"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	state, err := NewFileStateStore(filepath.Join(cfg.DataDir, "state.json"))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return &store.Stores{Ledger: ledger, State: state}, nil
}
