package session

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart   EventType = "session_start"
	EventSessionEnd     EventType = "session_complete"
	EventSessionAborted EventType = "session_aborted"
	EventTrialStart     EventType = "trial_start"
	EventTrialComplete  EventType = "trial_complete"
	EventPaused         EventType = "paused"
	EventResumed        EventType = "resumed"
	EventTrigger        EventType = "trigger_sent"
	EventTriggerFailure EventType = "trigger_failure"
	EventResultsWritten EventType = "results_written"
	EventError          EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// SessionStartData returns event data for a session start.
func SessionStartData(catalogPath, participant string, trialCount int) map[string]any {
	return map[string]any{
		"catalog":     catalogPath,
		"participant": participant,
		"trial_count": trialCount,
	}
}

// SessionCompleteData returns event data for a session end.
func SessionCompleteData(trials, responded int, durationMs int64) map[string]any {
	return map[string]any{
		"trials":      trials,
		"responded":   responded,
		"duration_ms": durationMs,
	}
}

// SessionAbortedData returns event data for a session that stopped early.
func SessionAbortedData(reason string, trialsDone int) map[string]any {
	return map[string]any{
		"reason":      reason,
		"trials_done": trialsDone,
	}
}

// TrialStartData returns event data for a trial start.
func TrialStartData(trial, totalTrials int) map[string]any {
	return map[string]any{
		"trial":        trial,
		"total_trials": totalTrials,
	}
}

// TrialCompleteData returns event data for a trial completion. key is empty
// and responseMs negative when there was no response.
func TrialCompleteData(trial int, key string, responseMs int64) map[string]any {
	d := map[string]any{
		"trial":     trial,
		"responded": key != "",
	}
	if key != "" {
		d["key"] = key
		d["response_ms"] = responseMs
	}
	return d
}

// PauseData returns event data for a pause or resume.
func PauseData(trial int, stage string, pausedMs int64) map[string]any {
	d := map[string]any{
		"trial": trial,
		"stage": stage,
	}
	if pausedMs > 0 {
		d["paused_ms"] = pausedMs
	}
	return d
}

// TriggerData returns event data for a trigger send or failure.
func TriggerData(label, op string, err error) map[string]any {
	d := map[string]any{"label": label}
	if op != "" {
		d["op"] = op
	}
	if err != nil {
		d["error"] = err.Error()
	}
	return d
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
