// Package sessions tracks the dApp sessions known to the wallet.
//
// The relay is the source of truth: the coordinator refreshes the store from
// GetActiveSessions after every lifecycle change. The store adds the lifecycle
// state on top (PROPOSED while a proposal awaits the user, EXTENDED once the
// relay reports a new expiry) and notifies observers with sorted snapshots.
package sessions

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nextlevelbuilder/walletbridge/internal/relay"
)

// Entry is one session plus its lifecycle state.
type Entry struct {
	relay.Session
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Observer receives a snapshot after every change.
type Observer func(entries []Entry)

// Store maps topic -> Entry.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	observers []Observer
	now       func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// ProposalKey is the key a proposal is tracked under until it gets a topic.
func ProposalKey(id int64) string {
	return "proposal:" + strconv.FormatInt(id, 10)
}

// OnChange registers an observer.
func (s *Store) OnChange(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Propose records a pending proposal under key.
func (s *Store) Propose(key string) error {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, key, e.State)
	}
	s.entries[key] = &Entry{
		Session:   relay.Session{Topic: key},
		State:     StateProposed,
		UpdatedAt: s.now(),
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Promote moves the proposal tracked under key to its real topic as ACTIVE.
func (s *Store) Promote(key string, sess relay.Session) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if !CanTransition(e.State, StateActive) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, key, e.State, StateActive)
	}
	delete(s.entries, key)
	s.entries[sess.Topic] = &Entry{Session: sess, State: StateActive, UpdatedAt: s.now()}
	s.mu.Unlock()

	slog.Info("session active", "topic", sess.Topic, "dapp", sess.Peer.Metadata.Name)
	s.notify()
	return nil
}

// Transition moves topic to state to. Terminal states delete the entry.
func (s *Store) Transition(topic string, to State) error {
	s.mu.Lock()
	e, ok := s.entries[topic]
	from := StateNone
	if ok {
		from = e.State
	}
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, topic, from, to)
	}
	switch {
	case to.terminal():
		delete(s.entries, topic)
	case !ok:
		s.entries[topic] = &Entry{Session: relay.Session{Topic: topic}, State: to, UpdatedAt: s.now()}
	default:
		e.State = to
		e.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	slog.Debug("session transition", "topic", topic, "from", from, "to", to)
	s.notify()
	return nil
}

// Replace syncs the store with the relay's active sessions.
// Unknown topics become ACTIVE, known topics whose expiry moved become
// EXTENDED, and settled topics the relay no longer reports are removed.
// Pending proposals are left alone.
func (s *Store) Replace(active map[string]relay.Session) {
	s.mu.Lock()
	now := s.now()
	for topic, e := range s.entries {
		if e.State == StateProposed {
			continue
		}
		if _, ok := active[topic]; !ok {
			delete(s.entries, topic)
			slog.Info("session gone", "topic", topic)
		}
	}
	for topic, sess := range active {
		e, ok := s.entries[topic]
		if !ok {
			s.entries[topic] = &Entry{Session: sess, State: StateActive, UpdatedAt: now}
			continue
		}
		if e.State != StateProposed && sess.Expiry != e.Expiry && CanTransition(e.State, StateExtended) {
			e.State = StateExtended
			e.UpdatedAt = now
		}
		e.Session = sess
	}
	s.mu.Unlock()
	s.notify()
}

// Get returns a copy of the entry for topic.
func (s *Store) Get(topic string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[topic]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether topic is a settled (non-proposal) session.
func (s *Store) Has(topic string) bool {
	e, ok := s.Get(topic)
	return ok && e.State != StateProposed
}

// List returns a snapshot sorted by topic.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Topics returns the settled session topics, sorted.
func (s *Store) Topics() []string {
	var out []string
	for _, e := range s.List() {
		if e.State != StateProposed {
			out = append(out, e.Topic)
		}
	}
	return out
}

// Remove deletes topic. Returns false if it was not present.
func (s *Store) Remove(topic string) bool {
	s.mu.Lock()
	_, ok := s.entries[topic]
	delete(s.entries, topic)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// Clear removes every entry and returns how many were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
	if n > 0 {
		s.notify()
	}
	return n
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (s *Store) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	obs := make([]Observer, len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(snap)
	}
}
