// Package sqlite implements the stores on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/walletbridge/internal/store"
)

// OpenDB opens (or creates) the database at path and applies the schema.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("sqlite store opened", "path", path)
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			request_id INTEGER NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 1,
			responded_at INTEGER NOT NULL,
			UNIQUE (topic, request_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_responded_at ON responses(responded_at)`,
		`CREATE TABLE IF NOT EXISTS kv_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SQLiteLedgerStore implements store.LedgerStore.
type SQLiteLedgerStore struct {
	db *sql.DB
}

func NewSQLiteLedgerStore(db *sql.DB) *SQLiteLedgerStore {
	return &SQLiteLedgerStore{db: db}
}

func (s *SQLiteLedgerStore) RecordResponse(ctx context.Context, rec store.ResponseRecord) (bool, error) {
	if err := store.ValidateRecord(rec); err != nil {
		return false, err
	}
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.RespondedAt.IsZero() {
		rec.RespondedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (id, topic, request_id, method, outcome, attempts, responded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (topic, request_id) DO NOTHING`,
		rec.ID.String(), rec.Topic, rec.RequestID, rec.Method, string(rec.Outcome), rec.Attempts, rec.RespondedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("record response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record response: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteLedgerStore) HasResponded(ctx context.Context, topic string, requestID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM responses WHERE topic = ? AND request_id = ?`, topic, requestID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query response: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteLedgerStore) ForgetResponse(ctx context.Context, topic string, requestID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM responses WHERE topic = ? AND request_id = ?`, topic, requestID,
	); err != nil {
		return fmt.Errorf("forget response: %w", err)
	}
	return nil
}

func (s *SQLiteLedgerStore) ListResponses(ctx context.Context, limit int) ([]store.ResponseRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, request_id, method, outcome, attempts, responded_at
		 FROM responses ORDER BY responded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []store.ResponseRecord
	for rows.Next() {
		var (
			rec     store.ResponseRecord
			id      string
			outcome string
			at      int64
		)
		if err := rows.Scan(&id, &rec.Topic, &rec.RequestID, &rec.Method, &outcome, &rec.Attempts, &at); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse response id %q: %w", id, err)
		}
		rec.Outcome = store.Outcome(outcome)
		rec.RespondedAt = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SQLiteStateStore implements store.StateStore.
type SQLiteStateStore struct {
	db *sql.DB
}

func NewSQLiteStateStore(db *sql.DB) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

func (s *SQLiteStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// NewSQLiteStores opens cfg.SQLitePath and returns the stores on it.
func NewSQLiteStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Ledger: NewSQLiteLedgerStore(db),
		State:  NewSQLiteStateStore(db),
		Close:  db.Close,
	}, nil
}
