package store

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is how a dApp request was answered.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
)

// ResponseRecord is one answered dApp request.
type ResponseRecord struct {
	ID          uuid.UUID `json:"id"`
	Topic       string    `json:"topic"`
	RequestID   int64     `json:"request_id"`
	Method      string    `json:"method"`
	Outcome     Outcome   `json:"outcome"`
	Attempts    int       `json:"attempts"`
	RespondedAt time.Time `json:"responded_at"`
}

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// StoreConfig configures the store layer.
type StoreConfig struct {
	// Mode: "standalone" (default, JSON files), "sqlite", or "managed" (Postgres).
	Mode string

	// PostgresDSN is the Postgres connection string (managed mode).
	PostgresDSN string

	// SQLitePath is the database file (sqlite mode).
	SQLitePath string

	// DataDir holds the JSON files (standalone mode).
	DataDir string
}

// IsManaged returns true if the system is in managed (Postgres) mode.
func (c StoreConfig) IsManaged() bool {
	return c.PostgresDSN != "" && c.Mode == "managed"
}

// Stores is the set of stores the daemon runs with.
type Stores struct {
	Ledger LedgerStore
	State  StateStore

	// Close releases the backend (db handle). Nil for file stores.
	Close func() error
}
