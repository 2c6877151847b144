package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/walletbridge/internal/store"
)

// PGLedgerStore implements store.LedgerStore backed by Postgres.
type PGLedgerStore struct {
	db *sql.DB
}

func NewPGLedgerStore(db *sql.DB) *PGLedgerStore {
	return &PGLedgerStore{db: db}
}

func (s *PGLedgerStore) RecordResponse(ctx context.Context, rec store.ResponseRecord) (bool, error) {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (topic, request_id) DO NOTHING`,
		rec.ID, rec.Topic, rec.RequestID, rec.Method, string(rec.Outcome), rec.Attempts, rec.RespondedAt,
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

func (s *PGLedgerStore) HasResponded(ctx context.Context, topic string, requestID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM responses WHERE topic = $1 AND request_id = $2)`, topic, requestID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query response: %w", err)
	}
	return exists, nil
}

func (s *PGLedgerStore) ForgetResponse(ctx context.Context, topic string, requestID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM responses WHERE topic = $1 AND request_id = $2`, topic, requestID,
	); err != nil {
		return fmt.Errorf("forget response: %w", err)
	}
	return nil
}

func (s *PGLedgerStore) ListResponses(ctx context.Context, limit int) ([]store.ResponseRecord, error) {
	q := `SELECT id, topic, request_id, method, outcome, attempts, responded_at
	      FROM responses ORDER BY responded_at DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []store.ResponseRecord
	for rows.Next() {
		var rec store.ResponseRecord
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.RequestID, &rec.Method, &outcome, &rec.Attempts, &rec.RespondedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		rec.Outcome = store.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PGStateStore implements store.StateStore backed by Postgres.
type PGStateStore struct {
	db *sql.DB
}

func NewPGStateStore(db *sql.DB) *PGStateStore {
	return &PGStateStore{db: db}
}

func (s *PGStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return v, true, nil
}

func (s *PGStateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_state (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// NewPGStores connects to cfg.PostgresDSN and returns the stores on it (managed mode).
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &store.Stores{
		Ledger: NewPGLedgerStore(db),
		State:  NewPGStateStore(db),
		Close:  db.Close,
	}, nil
}
