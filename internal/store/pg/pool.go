package pg

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB creates a database/sql connection to Postgres using pgx driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres connected", "dsn_len", len(dsn))
	return db, nil
}

// EnsureSchema creates the tables walletbridge needs.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			id UUID PRIMARY KEY,
			topic VARCHAR(255) NOT NULL,
			request_id BIGINT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 1,
			responded_at TIMESTAMPTZ NOT NULL,
			UNIQUE (topic, request_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_responded_at ON responses(responded_at DESC)`,
		`CREATE TABLE IF NOT EXISTS kv_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
