package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spboyer/stimseq/internal/scheduler"
	"github.com/spboyer/stimseq/internal/session"
	"github.com/spboyer/stimseq/internal/statistics"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// sessionEventAdapter turns scheduler progress into session log events.
type sessionEventAdapter struct {
	logger      session.Logger
	catalog     string
	participant string

	mu        sync.Mutex
	responded int
	done      int
	startedAt time.Time
}

func newSessionEventAdapter(logger session.Logger, catalogPath, participant string) *sessionEventAdapter {
	return &sessionEventAdapter{logger: logger, catalog: catalogPath, participant: participant}
}

func (a *sessionEventAdapter) listen(ev scheduler.ProgressEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	trial := ev.Trial + 1
	switch ev.EventType {
	case scheduler.EventSessionStart:
		a.startedAt = ev.At
		a.responded, a.done = 0, 0
		logEvent(a.logger, session.NewEvent(session.EventSessionStart, session.SessionStartData(a.catalog, a.participant, ev.TotalTrials)))
	case scheduler.EventTrialStart:
		logEvent(a.logger, session.NewEvent(session.EventTrialStart, session.TrialStartData(trial, ev.TotalTrials)))
	case scheduler.EventTrialComplete:
		a.done++
		key, ms := "", int64(-1)
		if ev.Record != nil && ev.Record.Responded() {
			a.responded++
			key = *ev.Record.PressedKey
			if ev.Record.ResponseTimeMs != nil {
				ms = *ev.Record.ResponseTimeMs
			}
		}
		logEvent(a.logger, session.NewEvent(session.EventTrialComplete, session.TrialCompleteData(trial, key, ms)))
	case scheduler.EventPaused:
		logEvent(a.logger, session.NewEvent(session.EventPaused, session.PauseData(trial, string(ev.Stage), 0)))
	case scheduler.EventResumed:
		paused, _ := ev.Details["paused_ms"].(int64) //nolint:errcheck
		logEvent(a.logger, session.NewEvent(session.EventResumed, session.PauseData(trial, string(ev.Stage), paused)))
	case scheduler.EventTriggerSent:
		label, _ := ev.Details["label"].(string) //nolint:errcheck
		logEvent(a.logger, session.NewEvent(session.EventTrigger, session.TriggerData(label, "", nil)))
	case scheduler.EventSessionComplete:
		var dur int64
		if !a.startedAt.IsZero() {
			dur = ev.At.Sub(a.startedAt).Milliseconds()
		}
		logEvent(a.logger, session.NewEvent(session.EventSessionEnd, session.SessionCompleteData(a.done, a.responded, dur)))
	case scheduler.EventSessionAborted:
		reason, _ := ev.Details["reason"].(string) //nolint:errcheck
		logEvent(a.logger, session.NewEvent(session.EventSessionAborted, session.SessionAbortedData(reason, a.done)))
	}
}

// verboseProgressListener prints one line per trial and stage to w.
func verboseProgressListener(w io.Writer) scheduler.ProgressListener {
	return func(ev scheduler.ProgressEvent) {
		trial := ev.Trial + 1
		switch ev.EventType {
		case scheduler.EventSessionStart:
			fmt.Fprintf(w, "Starting session (%d trials)\n", ev.TotalTrials)
		case scheduler.EventTrialStart:
			fmt.Fprintf(w, "[%d/%d] trial start\n", trial, ev.TotalTrials)
		case scheduler.EventStage:
			fmt.Fprintf(w, "[%d/%d]   %s\n", trial, ev.TotalTrials, ev.Stage)
		case scheduler.EventTriggerSent:
			fmt.Fprintf(w, "[%d/%d]   trigger %v\n", trial, ev.TotalTrials, ev.Details["label"])
		case scheduler.EventTrialComplete:
			if ev.Record != nil && ev.Record.Responded() {
				fmt.Fprintf(w, "[%d/%d] %s after %dms\n", trial, ev.TotalTrials, *ev.Record.PressedKey, *ev.Record.ResponseTimeMs)
			} else {
				fmt.Fprintf(w, "[%d/%d] no response\n", trial, ev.TotalTrials)
			}
		case scheduler.EventPaused:
			fmt.Fprintf(w, "[%d/%d] paused during %s\n", trial, ev.TotalTrials, ev.Stage)
		case scheduler.EventResumed:
			fmt.Fprintf(w, "[%d/%d] resumed after %vms\n", trial, ev.TotalTrials, ev.Details["paused_ms"])
		case scheduler.EventSessionComplete:
			fmt.Fprintln(w, "Session complete")
		case scheduler.EventSessionAborted:
			fmt.Fprintf(w, "Session aborted: %v\n", ev.Details["reason"])
		}
	}
}

// printSessionReport prints the outcome of one catalog run.
func printSessionReport(w io.Writer, res *sessionResult) {
	status := okStyle.Render("completed")
	if res.State != nil && !res.State.Completed {
		status = warnStyle.Render("aborted")
		if res.State.AbortedReason != "" {
			status += dimStyle.Render(" (" + res.State.AbortedReason + ")")
		}
	}
	title := res.Catalog
	if res.Test {
		title += " (test run)"
	}

	fmt.Fprintf(w, "\n%s  %s\n", titleStyle.Render(title), status)
	if res.State != nil && !res.State.EndedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", formatDuration(res.State.EndedAt.Sub(res.State.StartedAt)))
	}
	printSummary(w, res.Summary)
	for _, p := range res.Paths {
		fmt.Fprintf(w, "Results:  %s\n", p)
	}
	if res.Test {
		fmt.Fprintln(w, dimStyle.Render("No results written for a test run."))
	}
}

// printSummary prints response statistics.
func printSummary(w io.Writer, s statistics.Summary) {
	fmt.Fprintf(w, "Trials:   %d, responded %d (%.1f%%)\n", s.Trials, s.Responded, s.HitRate*100)
	if s.Responded == 0 {
		return
	}
	fmt.Fprintf(w, "RT:       mean %.1fms, sd %.1fms, median %.1fms, range %.0f-%.0fms\n",
		s.MeanMs, s.SDMs, s.MedianMs, s.MinMs, s.MaxMs)
	if s.Responded > 1 {
		fmt.Fprintf(w, "95%% CI:   [%.1f, %.1f]ms\n", s.CI.LowerMs, s.CI.UpperMs)
	}
	for _, kind := range []string{"keyboard", "mouse"} {
		if n := s.ByKind[kind]; n > 0 {
			fmt.Fprintf(w, "  %-8s %d\n", kind+":", n)
		}
	}
}

// formatDuration formats a duration in a stable, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}
