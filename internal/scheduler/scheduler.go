// Package scheduler runs a session: each trial goes through presenting A,
// the inner gap, presenting B and the outer gap, with pause and abort
// honored only between stages.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spboyer/stimseq/internal/audio"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/surface"
	"github.com/spboyer/stimseq/internal/trigger"
	"golang.org/x/sync/errgroup"
)

// Abort reasons recorded in SessionState.AbortedReason.
const (
	ReasonAbortKey  = "aborted by participant"
	ReasonCancelled = "cancelled by operator"
)

// Catalog is the trial source. *catalog.Catalog implements it.
type Catalog interface {
	Trials() []models.TrialSpec
	Timing() models.TimingConfig
}

// Appender receives each record as soon as its trial completes.
type Appender interface {
	Append(rec models.ResponseRecord)
}

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Surface surface.Surface
	Player  audio.Player

	// Emitter defaults to trigger.NopEmitter.
	Emitter trigger.Emitter

	// Recorder is optional.
	Recorder Appender
}

// Scheduler sequences one session. It is not reusable.
type Scheduler struct {
	trials []models.TrialSpec
	timing models.TimingConfig
	deps   Deps
	clock  Clock
	jitter Jitter

	stateMu sync.Mutex
	state   models.State

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithJitter replaces the inter-trial jitter source.
func WithJitter(j Jitter) Option {
	return func(s *Scheduler) {
		s.jitter = j
	}
}

// New creates a scheduler for the trials of cat.
func New(cat Catalog, deps Deps, opts ...Option) *Scheduler {
	if deps.Emitter == nil {
		deps.Emitter = trigger.NopEmitter{}
	}
	s := &Scheduler{
		trials: cat.Trials(),
		timing: cat.Timing(),
		deps:   deps,
		clock:  realClock{},
		jitter: NewUniformJitter(uint64(time.Now().UnixNano())),
		state:  models.StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnProgress registers a progress listener
func (s *Scheduler) OnProgress(listener ProgressListener) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// State returns the current state.
func (s *Scheduler) State() models.State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st models.State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// errStop ends a session at a boundary. reason becomes AbortedReason.
type errStop struct {
	reason string
	err    error
}

func (e *errStop) Error() string { return e.reason }

func (e *errStop) Unwrap() error { return e.err }

// Run executes every trial in order. It returns the session state in all
// cases. The error is nil when the session completed, wraps
// models.ErrAborted when it was stopped by the abort key or ctx, and is a
// *models.ResourceUnavailableError when a stimulus could not be played.
// Records exist only for trials that finished before the stop.
func (s *Scheduler) Run(ctx context.Context) (*models.SessionState, error) {
	state := &models.SessionState{
		Records:   make([]models.ResponseRecord, 0, len(s.trials)),
		StartedAt: s.clock.Now(),
	}
	s.notifyProgress(ProgressEvent{EventType: EventSessionStart})

	// Controls pressed before the first stimulus are discarded.
	_ = s.deps.Surface.Controls()

	for _, trial := range s.trials {
		rec, err := s.runTrial(ctx, trial)
		if err != nil {
			return s.stop(state, trial, err)
		}
		state.Records = append(state.Records, rec)
		if s.deps.Recorder != nil {
			s.deps.Recorder.Append(rec)
		}
		s.notifyProgress(ProgressEvent{EventType: EventTrialComplete, Trial: trial.Index, Record: &rec})
	}

	s.setState(models.StateCompleted)
	state.Completed = true
	state.EndedAt = s.clock.Now()
	if err := s.deps.Surface.Blank(context.WithoutCancel(ctx)); err != nil {
		slog.Debug("blanking surface failed", "error", err)
	}
	s.notifyProgress(ProgressEvent{EventType: EventSessionComplete})
	return state, nil
}

func (s *Scheduler) stop(state *models.SessionState, trial models.TrialSpec, err error) (*models.SessionState, error) {
	s.setState(models.StateAborted)
	state.Completed = false
	state.EndedAt = s.clock.Now()

	var stop *errStop
	if errors.As(err, &stop) {
		state.AbortedReason = stop.reason
		err = stop.err
	} else {
		state.AbortedReason = err.Error()
	}

	slog.Info("session stopped", "trial", trial.Index, "reason", state.AbortedReason)
	s.notifyProgress(ProgressEvent{
		EventType: EventSessionAborted,
		Trial:     trial.Index,
		Details:   map[string]any{"reason": state.AbortedReason},
	})
	return state, err
}

func (s *Scheduler) runTrial(ctx context.Context, trial models.TrialSpec) (models.ResponseRecord, error) {
	s.notifyProgress(ProgressEvent{EventType: EventTrialStart, Trial: trial.Index})

	var pres surface.Presentation
	for _, stage := range models.Stages {
		if err := s.checkpoint(ctx, trial.Index, stage); err != nil {
			return models.ResponseRecord{}, err
		}
		s.setState(stage)
		slog.Debug("stage", "trial", trial.Index, "stage", stage)
		s.notifyProgress(ProgressEvent{EventType: EventStage, Trial: trial.Index, Stage: stage})

		var err error
		switch stage {
		case models.StatePresentingA:
			_, err = s.present(ctx, trial, stage, trial.A, false)
		case models.StateInnerGap:
			err = s.gap(ctx, s.timing.InnerDelay())
		case models.StatePresentingB:
			pres, err = s.present(ctx, trial, stage, trial.B, true)
		case models.StateOuterGap:
			err = s.gap(ctx, s.timing.OuterDelay()+s.jitter.Draw(time.Duration(s.timing.OuterDelayJitterCeilMs)*time.Millisecond))
		}
		if err != nil {
			return models.ResponseRecord{}, err
		}
	}

	return newRecord(trial, pres), nil
}

func newRecord(trial models.TrialSpec, pres surface.Presentation) models.ResponseRecord {
	rec := models.ResponseRecord{
		TrialIndex: trial.Index,
		LabelA:     trial.A.Label,
		LabelB:     trial.B.Label,
	}
	if rt, ok := pres.ResponseTime(); ok {
		key, kind, ms := pres.Response.Key, pres.Response.Kind, rt.Milliseconds()
		rec.PressedKey, rec.ResponseKind, rec.ResponseTimeMs = &key, &kind, &ms
	}
	return rec
}

// present shows the stimulus, plays its clip and emits its label
// concurrently, returning when all are done. None is interrupted by ctx;
// stopping happens at the next boundary.
func (s *Scheduler) present(ctx context.Context, trial models.TrialSpec, stage models.State, stim models.StimulusSpec, capture bool) (surface.Presentation, error) {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	var pres surface.Presentation
	if stim.HasLabel() {
		g.Go(func() error {
			s.deps.Emitter.Emit(stim.Label)
			return nil
		})
	}
	g.Go(func() error {
		p, err := s.deps.Surface.Present(gctx, surface.PresentRequest{
			Trial:    trial.Index,
			Stage:    stage,
			Stimulus: stim,
			Window:   stim.Duration(),
			Capture:  capture,
		})
		pres = p
		return err
	})
	g.Go(func() error {
		return s.deps.Player.Play(gctx, stim.AudioRef, stim.Duration())
	})
	if err := g.Wait(); err != nil {
		if models.IsResourceUnavailable(err) {
			return surface.Presentation{}, err
		}
		return surface.Presentation{}, fmt.Errorf("trial %d %s: %w", trial.Index+1, stage, err)
	}
	if stim.HasLabel() {
		s.notifyProgress(ProgressEvent{
			EventType: EventTriggerSent,
			Trial:     trial.Index,
			Stage:     stage,
			Details:   map[string]any{"label": stim.Label},
		})
	}
	return pres, nil
}

func (s *Scheduler) gap(ctx context.Context, d time.Duration) error {
	if err := s.deps.Surface.Blank(ctx); err != nil {
		return fmt.Errorf("blanking surface: %w", err)
	}
	if err := s.clock.Sleep(ctx, d); err != nil {
		return cancelled(err)
	}
	return nil
}

// checkpoint applies latched controls before a stage starts. A pending
// pause holds the session on the pause screen until pause is pressed again.
func (s *Scheduler) checkpoint(ctx context.Context, trial int, next models.State) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	c := s.deps.Surface.Controls()
	if c.Abort {
		return &errStop{reason: ReasonAbortKey, err: models.ErrAborted}
	}
	if !c.Pause {
		return nil
	}

	prev := s.State()
	s.setState(models.StatePaused)
	s.notifyProgress(ProgressEvent{EventType: EventPaused, Trial: trial, Stage: prev})
	if err := s.deps.Surface.ShowPaused(ctx); err != nil {
		return fmt.Errorf("showing pause screen: %w", err)
	}
	pausedAt := s.clock.Now()

	for {
		ctl, err := s.deps.Surface.WaitControl(ctx)
		if err != nil {
			return cancelled(err)
		}
		switch ctl {
		case surface.ControlAbort:
			return &errStop{reason: ReasonAbortKey, err: models.ErrAborted}
		case surface.ControlPause:
			s.setState(prev)
			s.notifyProgress(ProgressEvent{
				EventType: EventResumed,
				Trial:     trial,
				Stage:     next,
				Details:   map[string]any{"paused_ms": s.clock.Now().Sub(pausedAt).Milliseconds()},
			})
			return s.deps.Surface.Blank(ctx)
		}
	}
}

func cancelled(err error) error {
	return &errStop{reason: ReasonCancelled, err: fmt.Errorf("%w: %w", models.ErrAborted, err)}
}
