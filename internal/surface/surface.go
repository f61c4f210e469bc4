// Package surface defines the response capture surface the scheduler
// presents stimuli on, plus a terminal implementation.
package surface

import (
	"context"
	"sort"
	"time"

	"github.com/spboyer/stimseq/internal/models"
)

//go:generate go tool mockgen -package surface -destination mock_surface.go . Surface

// PresentRequest asks the surface to show one stimulus.
type PresentRequest struct {
	Trial    int
	Stage    models.State
	Stimulus models.StimulusSpec

	// Window is how long the stimulus stays up. Present returns once it
	// elapses.
	Window time.Duration

	// Capture opens the response window at onset. Without it input is
	// observed for controls only.
	Capture bool
}

// Presentation is the outcome of a Present call.
type Presentation struct {
	// Onset is when the stimulus became visible.
	Onset time.Time

	// Response is the first qualifying input after Onset, or nil.
	Response *models.InputEvent
}

// ResponseTime returns the latency of the response relative to onset.
func (p Presentation) ResponseTime() (time.Duration, bool) {
	if p.Response == nil {
		return 0, false
	}
	d := p.Response.Timestamp.Sub(p.Onset)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Surface shows stimuli and reports input. Control keys (pause, abort) are
// latched and never reported as responses.
type Surface interface {
	// Present shows req.Stimulus and blocks for req.Window.
	Present(ctx context.Context, req PresentRequest) (Presentation, error)

	// Blank clears the display.
	Blank(ctx context.Context) error

	// ShowPaused displays the neutral pause screen.
	ShowPaused(ctx context.Context) error

	// Controls returns and clears the latched control signals. It never blocks.
	Controls() Controls

	// WaitControl blocks until a control signal arrives.
	WaitControl(ctx context.Context) (Control, error)

	Close() error
}

// FirstQualifying picks the response among events: the earliest event at or
// after onset whose key is not a control key. On equal timestamps keyboard
// wins over mouse. It returns nil when nothing qualifies.
func FirstQualifying(events []models.InputEvent, onset time.Time, isControl func(key string) bool) *models.InputEvent {
	candidates := make([]models.InputEvent, 0, len(events))
	for _, e := range events {
		if e.Timestamp.Before(onset) {
			continue
		}
		if isControl != nil && isControl(e.Key) {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Kind == models.InputKeyboard && b.Kind != models.InputKeyboard
	})
	first := candidates[0]
	return &first
}
