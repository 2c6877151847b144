package ui

import (
	"sync"

	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
)

// Modal is the currently displayed modal, if any.
type Modal struct {
	Type     ModalType   `json:"type"`
	PromptID string      `json:"promptId,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Dapp     Dapp        `json:"dapp"`
}

// State is everything the presentation layer needs to render.
type State struct {
	Modal              *Modal           `json:"modal"`
	Sessions           []sessions.Entry `json:"sessions"`
	NanoContractStatus Status           `json:"nanoContractStatus"`
	CreateTokenStatus  Status           `json:"createTokenStatus"`
	Connection         string           `json:"connection"`
	ConnectionFailed   bool             `json:"connectionFailed"`
}

// InitialState is the state before any action.
func InitialState() State {
	return State{
		Sessions:           []sessions.Entry{},
		NanoContractStatus: StatusReady,
		CreateTokenStatus:  StatusReady,
		Connection:         "IDLE",
	}
}

// Apply returns the state after a. It never mutates s.
func (s State) Apply(a Action) State {
	switch a := a.(type) {
	case ShowModal:
		s.Modal = &Modal{Type: a.Modal, PromptID: a.PromptID, Data: a.Data, Dapp: a.Dapp}
	case HideModal:
		// A stale hide for an already replaced prompt leaves the new modal up.
		if s.Modal != nil && (a.PromptID == "" || a.PromptID == s.Modal.PromptID) {
			s.Modal = nil
		}
	case SetStatus:
		switch a.Flow {
		case FlowNanoContract:
			s.NanoContractStatus = a.Status
		case FlowCreateToken:
			s.CreateTokenStatus = a.Status
		}
	case SetSessions:
		list := make([]sessions.Entry, len(a.Sessions))
		copy(list, a.Sessions)
		s.Sessions = list
	case SetConnection:
		s.Connection = a.State
		s.ConnectionFailed = a.Failed
	}
	return s
}

// Store holds the current State.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore creates a store at InitialState.
func NewStore() *Store {
	return &Store{state: InitialState()}
}

// Apply reduces a into the stored state and returns the new state.
func (st *Store) Apply(a Action) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = st.state.Apply(a)
	return st.state
}

// Snapshot returns the current state.
func (st *Store) Snapshot() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state
}
