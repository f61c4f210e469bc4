package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/scheduler"
	"github.com/spboyer/stimseq/internal/session"
	"github.com/spboyer/stimseq/internal/statistics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responded(trial int, key string, ms int64) *models.ResponseRecord {
	kind := models.InputKeyboard
	return &models.ResponseRecord{TrialIndex: trial, PressedKey: &key, ResponseKind: &kind, ResponseTimeMs: &ms}
}

func TestSessionEventAdapter_CompletedSession(t *testing.T) {
	logger := &recordingLogger{}
	a := newSessionEventAdapter(logger, "cfg/exp.csv", "P01")
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventSessionStart, TotalTrials: 2, At: start})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventTrialStart, Trial: 0, TotalTrials: 2})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventStage, Trial: 0, Stage: models.StatePresentingA})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventTriggerSent, Trial: 0, Details: map[string]any{"label": "S1"}})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventTrialComplete, Trial: 0, Record: responded(0, "space", 210)})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventPaused, Trial: 1, Stage: models.StateInnerGap})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventResumed, Trial: 1, Stage: models.StateInnerGap, Details: map[string]any{"paused_ms": int64(1600)}})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventTrialComplete, Trial: 1, Record: &models.ResponseRecord{TrialIndex: 1}})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventSessionComplete, At: start.Add(3 * time.Second)})

	assert.Equal(t, []session.EventType{
		session.EventSessionStart,
		session.EventTrialStart,
		session.EventTrigger,
		session.EventTrialComplete,
		session.EventPaused,
		session.EventResumed,
		session.EventTrialComplete,
		session.EventSessionEnd,
	}, logger.types())

	ev := logger.events
	assert.Equal(t, "cfg/exp.csv", ev[0].Data["catalog"])
	assert.Equal(t, "P01", ev[0].Data["participant"])
	assert.Equal(t, 1, ev[1].Data["trial"], "trials are numbered from 1")
	assert.Equal(t, "S1", ev[2].Data["label"])
	assert.Equal(t, "space", ev[3].Data["key"])
	assert.Equal(t, int64(210), ev[3].Data["response_ms"])
	assert.Equal(t, int64(1600), ev[5].Data["paused_ms"])
	assert.Equal(t, false, ev[6].Data["responded"])

	end := ev[7].Data
	assert.Equal(t, 2, end["trials"])
	assert.Equal(t, 1, end["responded"])
	assert.Equal(t, int64(3000), end["duration_ms"])
}

func TestSessionEventAdapter_Aborted(t *testing.T) {
	logger := &recordingLogger{}
	a := newSessionEventAdapter(logger, "exp.csv", "P01")

	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventSessionStart, TotalTrials: 3})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventTrialComplete, Trial: 0, Record: responded(0, "f", 300)})
	a.listen(scheduler.ProgressEvent{EventType: scheduler.EventSessionAborted, Trial: 1, Details: map[string]any{"reason": "abort key"}})

	require.Len(t, logger.events, 3)
	last := logger.events[2]
	assert.Equal(t, session.EventSessionAborted, last.Type)
	assert.Equal(t, "abort key", last.Data["reason"])
	assert.Equal(t, 1, last.Data["trials_done"])
}

func TestVerboseProgressListener(t *testing.T) {
	var buf bytes.Buffer
	l := verboseProgressListener(&buf)

	l(scheduler.ProgressEvent{EventType: scheduler.EventSessionStart, TotalTrials: 2})
	l(scheduler.ProgressEvent{EventType: scheduler.EventStage, Trial: 0, TotalTrials: 2, Stage: models.StatePresentingB})
	l(scheduler.ProgressEvent{EventType: scheduler.EventTrialComplete, Trial: 0, TotalTrials: 2, Record: responded(0, "space", 250)})
	l(scheduler.ProgressEvent{EventType: scheduler.EventTrialComplete, Trial: 1, TotalTrials: 2, Record: &models.ResponseRecord{TrialIndex: 1}})
	l(scheduler.ProgressEvent{EventType: scheduler.EventSessionAborted, Details: map[string]any{"reason": "interrupted"}})

	out := buf.String()
	assert.Contains(t, out, "Starting session (2 trials)")
	assert.Contains(t, out, "[1/2]   presenting_b")
	assert.Contains(t, out, "[1/2] space after 250ms")
	assert.Contains(t, out, "[2/2] no response")
	assert.Contains(t, out, "Session aborted: interrupted")
}

func TestPrintSessionReport(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := &sessionResult{
		Catalog: "exp",
		State: &models.SessionState{
			Completed:     false,
			AbortedReason: "abort key",
			StartedAt:     start,
			EndedAt:       start.Add(1500 * time.Millisecond),
		},
		Paths:   []string{"results/P01_incomplete.csv"},
		Summary: statistics.Summarize(2, []float64{200, 400}, 1),
	}

	var buf bytes.Buffer
	printSessionReport(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "exp")
	assert.Contains(t, out, "aborted")
	assert.Contains(t, out, "abort key")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.Contains(t, out, "Trials:   2, responded 2 (100.0%)")
	assert.Contains(t, out, "mean 300.0ms")
	assert.Contains(t, out, "Results:  results/P01_incomplete.csv")
	assert.NotContains(t, out, "test run")
}

func TestPrintSummary_NoResponses(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, statistics.Summarize(3, nil, 1))
	assert.Equal(t, "Trials:   3, responded 0 (0.0%)\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2m3.5s", formatDuration(2*time.Minute+3500*time.Millisecond))
}
