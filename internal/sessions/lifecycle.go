package sessions

// State is where a session sits in its lifecycle.
type State string

const (
	StateNone         State = "NO_SESSION"
	StateProposed     State = "PROPOSED"
	StateActive       State = "ACTIVE"
	StateExtended     State = "EXTENDED"
	StateDisconnected State = "DISCONNECTED"
)

var transitions = map[State][]State{
	StateNone:     {StateProposed},
	StateProposed: {StateActive, StateNone},
	StateActive:   {StateExtended, StateDisconnected},
	StateExtended: {StateExtended, StateDisconnected},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// terminal states remove the entry from the store.
func (s State) terminal() bool {
	return s == StateNone || s == StateDisconnected
}
