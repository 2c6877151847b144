// Package file implements the stores on JSON files (standalone mode).
package file

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/walletbridge/internal/store"
)

// maxRecords caps the ledger file; the oldest records are pruned first.
const maxRecords = 5000

type ledgerData struct {
	Responses []store.ResponseRecord `json:"responses"`
}

// FileLedgerStore implements store.LedgerStore on one JSON file.
type FileLedgerStore struct {
	path string
	data ledgerData
	seen map[string]bool
	mu   sync.Mutex
}

// NewFileLedgerStore loads (or starts) the ledger at path.
func NewFileLedgerStore(path string) (*FileLedgerStore, error) {
	s := &FileLedgerStore{path: path, seen: make(map[string]bool)}
	if _, err := readJSON(path, &s.data); err != nil {
		return nil, err
	}
	for _, r := range s.data.Responses {
		s.seen[key(r.Topic, r.RequestID)] = true
	}
	slog.Info("ledger loaded", "path", path, "records", len(s.data.Responses))
	return s, nil
}

func key(topic string, id int64) string {
	return fmt.Sprintf("%s:%d", topic, id)
}

func (s *FileLedgerStore) RecordResponse(_ context.Context, rec store.ResponseRecord) (bool, error) {
	if err := store.ValidateRecord(rec); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.Topic, rec.RequestID)
	if s.seen[k] {
		return false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.RespondedAt.IsZero() {
		rec.RespondedAt = time.Now()
	}

	s.data.Responses = append(s.data.Responses, rec)
	if over := len(s.data.Responses) - maxRecords; over > 0 {
		for _, old := range s.data.Responses[:over] {
			delete(s.seen, key(old.Topic, old.RequestID))
		}
		s.data.Responses = append([]store.ResponseRecord(nil), s.data.Responses[over:]...)
	}
	s.seen[k] = true

	if err := writeJSONAtomic(s.path, s.data); err != nil {
		return false, fmt.Errorf("save ledger: %w", err)
	}
	return true, nil
}

func (s *FileLedgerStore) HasResponded(_ context.Context, topic string, requestID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[key(topic, requestID)], nil
}

func (s *FileLedgerStore) ForgetResponse(_ context.Context, topic string, requestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(topic, requestID)
	if !s.seen[k] {
		return nil
	}
	kept := s.data.Responses[:0]
	for _, r := range s.data.Responses {
		if r.Topic != topic || r.RequestID != requestID {
			kept = append(kept, r)
		}
	}
	s.data.Responses = kept
	delete(s.seen, k)

	if err := writeJSONAtomic(s.path, s.data); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func (s *FileLedgerStore) ListResponses(_ context.Context, limit int) ([]store.ResponseRecord, error) {
	s.mu.Lock()
	n := len(s.data.Responses)
	out := make([]store.ResponseRecord, n)
	for i, r := range s.data.Responses {
		out[n-1-i] = r
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].RespondedAt.After(out[j].RespondedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
