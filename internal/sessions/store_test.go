package sessions

import (
	"errors"
	"testing"

	"github.com/nextlevelbuilder/walletbridge/internal/relay"
)

func sess(topic string, expiry int64) relay.Session {
	return relay.Session{Topic: topic, Expiry: expiry}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateNone, StateProposed, true},
		{StateProposed, StateActive, true},
		{StateProposed, StateNone, true},
		{StateActive, StateExtended, true},
		{StateActive, StateDisconnected, true},
		{StateExtended, StateExtended, true},
		{StateExtended, StateDisconnected, true},
		{StateNone, StateActive, false},
		{StateActive, StateProposed, false},
		{StateDisconnected, StateActive, false},
		{StateExtended, StateActive, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestProposeAndPromote(t *testing.T) {
	s := NewStore()
	key := ProposalKey(9)
	if err := s.Propose(key); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := s.Propose(key); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Propose: expected ErrInvalidTransition, got %v", err)
	}
	if s.Has(key) {
		t.Error("proposal counted as settled session")
	}

	if err := s.Promote(key, sess("t1", 10)); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if _, ok := s.Get(key); ok {
		t.Error("proposal key still present")
	}
	e, ok := s.Get("t1")
	if !ok || e.State != StateActive {
		t.Fatalf("t1 = %+v, %v", e, ok)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d", s.Len())
	}

	if err := s.Promote("missing", sess("t2", 1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionDisconnectDeletes(t *testing.T) {
	s := NewStore()
	s.Replace(map[string]relay.Session{"t1": sess("t1", 1)})

	if err := s.Transition("t1", StateProposed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.Transition("t1", StateDisconnected); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("entry not deleted")
	}
}

func TestReplace(t *testing.T) {
	s := NewStore()
	s.Propose(ProposalKey(1))
	s.Replace(map[string]relay.Session{
		"a": sess("a", 10),
		"b": sess("b", 10),
	})

	s.Replace(map[string]relay.Session{
		"a": sess("a", 20), // extended
		"c": sess("c", 10), // new
	})

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3 (a, c, proposal)", len(list))
	}
	want := map[string]State{"a": StateExtended, "c": StateActive, ProposalKey(1): StateProposed}
	for _, e := range list {
		if want[e.Topic] != e.State {
			t.Errorf("%s: state %s, want %s", e.Topic, e.State, want[e.Topic])
		}
	}
	if list[0].Topic != "a" || list[1].Topic != "c" {
		t.Errorf("not sorted: %s, %s", list[0].Topic, list[1].Topic)
	}
	if got := s.Topics(); len(got) != 2 {
		t.Errorf("Topics = %v", got)
	}
}

func TestObserverAndClear(t *testing.T) {
	s := NewStore()
	var last []Entry
	calls := 0
	s.OnChange(func(entries []Entry) {
		calls++
		last = entries
	})

	s.Replace(map[string]relay.Session{"a": sess("a", 1), "b": sess("b", 1)})
	if len(last) != 2 {
		t.Fatalf("observer saw %d entries", len(last))
	}
	if !s.Remove("a") || s.Remove("a") {
		t.Error("Remove result mismatch")
	}
	if n := s.Clear(); n != 1 {
		t.Errorf("Clear = %d, want 1", n)
	}
	if len(last) != 0 {
		t.Errorf("observer not notified of clear")
	}
	if calls != 3 {
		t.Errorf("observer calls = %d, want 3", calls)
	}
}
