package models

import "time"

// InputKind distinguishes keyboard from mouse input.
type InputKind string

const (
	InputKeyboard InputKind = "keyboard"
	InputMouse    InputKind = "mouse"
)

// InputEvent is a single key press or button click observed by a surface.
type InputEvent struct {
	// Key is the key name ("a", "space", "enter") or mouse button id ("1", "2", "3").
	Key       string    `json:"key"`
	Kind      InputKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ResponseRecord is the scored outcome of one trial. It is never mutated
// after the scheduler appends it.
type ResponseRecord struct {
	TrialIndex int `json:"trial_index"`

	// PressedKey and ResponseTimeMs are nil when no input arrived before the
	// stimulus-B window closed.
	PressedKey     *string    `json:"pressed_key,omitempty"`
	ResponseKind   *InputKind `json:"response_kind,omitempty"`
	ResponseTimeMs *int64     `json:"response_time_ms,omitempty"`

	LabelA string `json:"label_a,omitempty"`
	LabelB string `json:"label_b,omitempty"`
}

// Responded reports whether the trial captured a response.
func (r ResponseRecord) Responded() bool {
	return r.PressedKey != nil
}

// SessionState is the ordered set of records for one session.
type SessionState struct {
	Records       []ResponseRecord `json:"records"`
	Completed     bool             `json:"completed"`
	AbortedReason string           `json:"aborted_reason,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       time.Time        `json:"ended_at"`
}

// Participant identifies who ran the session. It determines result file names.
type Participant struct {
	ID     string `json:"id"`
	Param1 string `json:"param1,omitempty"`
	Param2 string `json:"param2,omitempty"`
}
