package file

import (
	"context"
	"fmt"
	"sync"
)

// FileStateStore implements store.StateStore on one JSON object file.
type FileStateStore struct {
	path   string
	values map[string]string
	mu     sync.Mutex
}

// NewFileStateStore loads (or starts) the state file at path.
func NewFileStateStore(path string) (*FileStateStore, error) {
	s := &FileStateStore{path: path, values: make(map[string]string)}
	if _, err := readJSON(path, &s.values); err != nil {
		return nil, err
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return s, nil
}

func (s *FileStateStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStateStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	if err := writeJSONAtomic(s.path, s.values); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
