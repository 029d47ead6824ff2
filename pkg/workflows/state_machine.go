package workflows

// Transition is one row of a workflow table.
type Transition[S ~string, A ~string] struct {
	From   S
	Action A
	To     S
}

// StateMachine enforces status transitions keyed by action
type StateMachine[S ~string, A ~string] struct {
	transitions map[S]map[A]S
	order       map[S][]A
	terminal    map[S]bool
}

// NewStateMachine creates a state machine from a transition table.
// States without outgoing transitions are terminal.
func NewStateMachine[S ~string, A ~string](table []Transition[S, A], states ...S) *StateMachine[S, A] {
	sm := &StateMachine[S, A]{
		transitions: make(map[S]map[A]S),
		order:       make(map[S][]A),
		terminal:    make(map[S]bool),
	}
	for _, t := range table {
		if sm.transitions[t.From] == nil {
			sm.transitions[t.From] = make(map[A]S)
		}
		if _, dup := sm.transitions[t.From][t.Action]; !dup {
			sm.order[t.From] = append(sm.order[t.From], t.Action)
		}
		sm.transitions[t.From][t.Action] = t.To
	}
	for _, s := range states {
		if len(sm.transitions[s]) == 0 {
			sm.terminal[s] = true
		}
	}
	return sm
}

// Next returns the target state of action from state.
func (sm *StateMachine[S, A]) Next(from S, action A) (S, bool) {
	to, ok := sm.transitions[from][action]
	return to, ok
}

// CanTransition checks if a status transition is allowed by some action
func (sm *StateMachine[S, A]) CanTransition(from, to S) bool {
	for _, target := range sm.transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// GetAllowedActions returns the actions valid from a given status, in table order
func (sm *StateMachine[S, A]) GetAllowedActions(from S) []A {
	allowed := sm.order[from]
	out := make([]A, len(allowed))
	copy(out, allowed)
	return out
}

// IsTerminal reports whether no action leaves state s.
func (sm *StateMachine[S, A]) IsTerminal(s S) bool {
	return sm.terminal[s]
}
