package models

// State is a scheduler state.
type State string

const (
	StateIdle        State = "idle"
	StatePresentingA State = "presenting_a"
	StateInnerGap    State = "inner_gap"
	StatePresentingB State = "presenting_b"
	StateOuterGap    State = "outer_gap"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateAborted     State = "aborted"
)

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Stages lists the per-trial stages in execution order.
var Stages = []State{StatePresentingA, StateInnerGap, StatePresentingB, StateOuterGap}
