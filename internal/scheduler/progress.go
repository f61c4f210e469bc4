package scheduler

import (
	"time"

	"github.com/spboyer/stimseq/internal/models"
)

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventSessionComplete EventType = "session_complete"
	EventSessionAborted  EventType = "session_aborted"
	EventTrialStart      EventType = "trial_start"
	EventTrialComplete   EventType = "trial_complete"
	EventStage           EventType = "stage"
	EventPaused          EventType = "paused"
	EventResumed         EventType = "resumed"
	EventTriggerSent     EventType = "trigger_sent"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType   EventType
	Trial       int
	TotalTrials int
	Stage       models.State
	At          time.Time

	// Record is set on EventTrialComplete.
	Record *models.ResponseRecord

	Details map[string]any
}

func (s *Scheduler) notifyProgress(event ProgressEvent) {
	s.progressMu.Lock()
	listeners := make([]ProgressListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.progressMu.Unlock()

	if event.At.IsZero() {
		event.At = s.clock.Now()
	}
	if event.TotalTrials == 0 {
		event.TotalTrials = len(s.trials)
	}
	for _, listener := range listeners {
		listener(event)
	}
}
