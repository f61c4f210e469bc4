package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/stimseq/internal/audio"
	"github.com/spboyer/stimseq/internal/audio/audiotest"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/surface"
	"github.com/spboyer/stimseq/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeClock advances only when the scheduler or fake surface asks it to.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stageKey struct {
	trial int
	stage models.State
}

// journal is an ordered log shared by the fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// fakeSurface holds each stimulus for its window on the fake clock and
// replays scripted responses and controls.
type fakeSurface struct {
	clock   *fakeClock
	journal *journal
	latch   *surface.Latch

	responses map[stageKey]models.InputEvent
	offsets   map[stageKey]time.Duration
	controls  map[stageKey][]surface.Control

	// resumeAfterPause signals pause again as soon as the pause screen shows.
	resumeAfterPause bool
	presentErr       map[stageKey]error

	mu       sync.Mutex
	requests []surface.PresentRequest
	paused   int
}

func newFakeSurface(clock *fakeClock, j *journal) *fakeSurface {
	return &fakeSurface{
		clock:      clock,
		journal:    j,
		latch:      surface.NewLatch(),
		responses:  map[stageKey]models.InputEvent{},
		offsets:    map[stageKey]time.Duration{},
		controls:   map[stageKey][]surface.Control{},
		presentErr: map[stageKey]error{},
	}
}

func (f *fakeSurface) respond(trial int, key string, kind models.InputKind, after time.Duration) {
	k := stageKey{trial, models.StatePresentingB}
	f.responses[k] = models.InputEvent{Key: key, Kind: kind}
	f.offsets[k] = after
}

func (f *fakeSurface) Present(ctx context.Context, req surface.PresentRequest) (surface.Presentation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	k := stageKey{req.Trial, req.Stage}
	if err := f.presentErr[k]; err != nil {
		return surface.Presentation{}, err
	}

	onset := f.clock.Now()
	f.journal.add("show " + req.Stimulus.ImageRef)
	for _, c := range f.controls[k] {
		f.latch.Signal(c)
	}

	p := surface.Presentation{Onset: onset}
	if ev, ok := f.responses[k]; ok && req.Capture {
		ev.Timestamp = onset.Add(f.offsets[k])
		p.Response = &ev
	}
	f.clock.advance(req.Window)
	return p, nil
}

func (f *fakeSurface) Blank(context.Context) error { return nil }

func (f *fakeSurface) ShowPaused(context.Context) error {
	f.mu.Lock()
	f.paused++
	f.mu.Unlock()
	f.journal.add("paused")
	if f.resumeAfterPause {
		f.latch.Signal(surface.ControlPause)
	}
	return nil
}

func (f *fakeSurface) Controls() surface.Controls { return f.latch.Drain() }

func (f *fakeSurface) WaitControl(ctx context.Context) (surface.Control, error) {
	return f.latch.Wait(ctx)
}

func (f *fakeSurface) Close() error { return nil }

// fakePlayer logs start and end of every clip.
type fakePlayer struct {
	journal *journal
	errs    map[string]error
	mu      sync.Mutex
	played  []string
}

func (p *fakePlayer) Play(ctx context.Context, resource string, maxDuration time.Duration) error {
	if err := p.errs[resource]; err != nil {
		return err
	}
	p.journal.add("play " + resource)
	p.mu.Lock()
	p.played = append(p.played, resource)
	p.mu.Unlock()
	p.journal.add("done " + resource)
	return nil
}

type memCatalog struct {
	trials []models.TrialSpec
	timing models.TimingConfig
}

func (c memCatalog) Trials() []models.TrialSpec  { return c.trials }
func (c memCatalog) Timing() models.TimingConfig { return c.timing }

func twoTrials(inner, outer, ceil int) memCatalog {
	trial := func(i int) models.TrialSpec {
		n := string(rune('1' + i))
		return models.TrialSpec{
			Index: i,
			A:     models.StimulusSpec{ImageRef: "a" + n + ".png", AudioRef: "a" + n + ".wav", DurationMs: 400},
			B:     models.StimulusSpec{ImageRef: "b" + n + ".png", AudioRef: "b" + n + ".wav", DurationMs: 1000},
		}
	}
	return memCatalog{
		trials: []models.TrialSpec{trial(0), trial(1)},
		timing: models.TimingConfig{InnerDelayMs: inner, OuterDelayMs: outer, OuterDelayJitterCeilMs: ceil},
	}
}

type recorderFunc func(models.ResponseRecord)

func (f recorderFunc) Append(r models.ResponseRecord) { f(r) }

type harness struct {
	clock   *fakeClock
	journal *journal
	surface *fakeSurface
	player  *fakePlayer
}

func newHarness() *harness {
	c, j := newFakeClock(), &journal{}
	return &harness{
		clock:   c,
		journal: j,
		surface: newFakeSurface(c, j),
		player:  &fakePlayer{journal: j, errs: map[string]error{}},
	}
}

func (h *harness) scheduler(cat Catalog, opts ...Option) *Scheduler {
	opts = append([]Option{WithClock(h.clock), WithJitter(NewUniformJitter(1))}, opts...)
	return New(cat, Deps{Surface: h.surface, Player: h.player}, opts...)
}

func TestRun_NoInputTwoTrials(t *testing.T) {
	h := newHarness()
	s := h.scheduler(twoTrials(500, 1000, 0))

	state, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, state.Completed)
	assert.Empty(t, state.AbortedReason)
	require.Len(t, state.Records, 2)
	for i, rec := range state.Records {
		assert.Equal(t, i, rec.TrialIndex)
		assert.Nil(t, rec.PressedKey)
		assert.Nil(t, rec.ResponseTimeMs)
		assert.Nil(t, rec.ResponseKind)
	}

	// 2 x (400 + 500 + 1000 + 1000)
	assert.Equal(t, 5800*time.Millisecond, state.EndedAt.Sub(state.StartedAt))
	assert.Equal(t, models.StateCompleted, s.State())
}

func TestRun_StageOrder(t *testing.T) {
	h := newHarness()
	s := h.scheduler(twoTrials(500, 1000, 0))

	var stages []stageKey
	s.OnProgress(func(e ProgressEvent) {
		if e.EventType == EventStage {
			stages = append(stages, stageKey{e.Trial, e.Stage})
		}
	})

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	var want []stageKey
	for trial := 0; trial < 2; trial++ {
		for _, st := range models.Stages {
			want = append(want, stageKey{trial, st})
		}
	}
	assert.Equal(t, want, stages)
	assert.Equal(t, []string{"a1.wav", "b1.wav", "a2.wav", "b2.wav"}, h.player.played)

	require.Len(t, h.surface.requests, 4)
	assert.False(t, h.surface.requests[0].Capture, "stage A is never scored")
	assert.True(t, h.surface.requests[1].Capture)
	assert.Equal(t, time.Second, h.surface.requests[1].Window)
}

func TestRun_ResponseTimeFromBOnset(t *testing.T) {
	h := newHarness()
	h.surface.respond(0, "a", models.InputKeyboard, 50*time.Millisecond)
	h.surface.respond(1, "1", models.InputMouse, 730*time.Millisecond)

	state, err := h.scheduler(twoTrials(500, 1000, 0)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Records, 2)

	first := state.Records[0]
	require.NotNil(t, first.PressedKey)
	assert.Equal(t, "a", *first.PressedKey)
	assert.Equal(t, models.InputKeyboard, *first.ResponseKind)
	assert.Equal(t, int64(50), *first.ResponseTimeMs)

	second := state.Records[1]
	assert.Equal(t, "1", *second.PressedKey)
	assert.Equal(t, models.InputMouse, *second.ResponseKind)
	assert.Equal(t, int64(730), *second.ResponseTimeMs)
}

func TestRun_ZeroJitterCeilingIsExact(t *testing.T) {
	h := newHarness()
	_, err := h.scheduler(twoTrials(500, 1000, 0)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, 1000 * time.Millisecond,
		500 * time.Millisecond, 1000 * time.Millisecond,
	}, h.clock.sleeps)
}

func TestRun_JitterWithinCeiling(t *testing.T) {
	h := newHarness()
	cat := twoTrials(0, 1000, 300)
	for i := 0; i < 20; i++ {
		cat.trials = append(cat.trials, cat.trials[0])
	}
	_, err := h.scheduler(cat).Run(context.Background())
	require.NoError(t, err)

	distinct := map[time.Duration]bool{}
	for i, d := range h.clock.sleeps {
		if i%2 == 0 {
			assert.Zero(t, d, "inner gap")
			continue
		}
		assert.GreaterOrEqual(t, d, 1000*time.Millisecond)
		assert.Less(t, d, 1300*time.Millisecond)
		distinct[d] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func TestRun_PauseDuringAWaitsForPlayback(t *testing.T) {
	h := newHarness()
	h.surface.controls[stageKey{0, models.StatePresentingA}] = []surface.Control{surface.ControlPause}
	h.surface.resumeAfterPause = true

	s := h.scheduler(twoTrials(500, 1000, 0))
	var events []EventType
	s.OnProgress(func(e ProgressEvent) {
		if e.EventType == EventPaused || e.EventType == EventResumed {
			events = append(events, e.EventType)
		}
	})

	state, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Completed)
	assert.Len(t, state.Records, 2)
	assert.Equal(t, []EventType{EventPaused, EventResumed}, events)

	// Show and playback of stage A run concurrently; the pause screen only
	// appears once both are done.
	log := h.journal.all()
	require.GreaterOrEqual(t, len(log), 4)
	assert.ElementsMatch(t, []string{"show a1.png", "play a1.wav", "done a1.wav"}, log[:3])
	assert.Equal(t, "paused", log[3])
}

func TestRun_AbortKeyStopsAtBoundary(t *testing.T) {
	h := newHarness()
	// Abort pressed while trial 2's B is on screen: trial 2 is in flight.
	h.surface.controls[stageKey{1, models.StatePresentingB}] = []surface.Control{surface.ControlAbort}

	var appended []models.ResponseRecord
	s := New(twoTrials(500, 1000, 0), Deps{
		Surface:  h.surface,
		Player:   h.player,
		Recorder: recorderFunc(func(r models.ResponseRecord) { appended = append(appended, r) }),
	}, WithClock(h.clock))

	state, err := s.Run(context.Background())
	require.ErrorIs(t, err, models.ErrAborted)
	assert.False(t, state.Completed)
	assert.Equal(t, ReasonAbortKey, state.AbortedReason)
	require.Len(t, state.Records, 1)
	assert.Equal(t, 0, state.Records[0].TrialIndex)
	assert.Equal(t, state.Records, appended)
	assert.Equal(t, models.StateAborted, s.State())

	// B playback of the in-flight trial was not cut short.
	assert.Contains(t, h.player.played, "b2.wav")
}

func TestRun_AbortWhilePaused(t *testing.T) {
	h := newHarness()
	h.surface.controls[stageKey{0, models.StatePresentingA}] = []surface.Control{surface.ControlPause}

	s := h.scheduler(twoTrials(500, 1000, 0))
	done := make(chan struct{})
	var (
		state *models.SessionState
		err   error
	)
	go func() {
		defer close(done)
		state, err = s.Run(context.Background())
	}()

	require.Eventually(t, func() bool { return s.State() == models.StatePaused }, time.Second, time.Millisecond)
	h.surface.latch.Signal(surface.ControlAbort)
	<-done

	require.ErrorIs(t, err, models.ErrAborted)
	assert.Empty(t, state.Records)
	assert.Equal(t, 1, h.surface.paused)
}

func TestRun_ContextCancelledWhilePaused(t *testing.T) {
	h := newHarness()
	h.surface.controls[stageKey{0, models.StatePresentingB}] = []surface.Control{surface.ControlPause}

	ctx, cancel := context.WithCancel(context.Background())
	s := h.scheduler(twoTrials(500, 1000, 0))
	s.OnProgress(func(e ProgressEvent) {
		if e.EventType == EventPaused {
			cancel()
		}
	})

	state, err := s.Run(ctx)
	require.ErrorIs(t, err, models.ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ReasonCancelled, state.AbortedReason)
	assert.Empty(t, state.Records)
}

func TestRun_MissingBClipAborts(t *testing.T) {
	dir := t.TempDir()
	present := audiotest.WriteClip(t, dir, "a.wav", 20*time.Millisecond)
	cat := memCatalog{trials: []models.TrialSpec{{
		A: models.StimulusSpec{ImageRef: "a.png", AudioRef: present, DurationMs: 20},
		B: models.StimulusSpec{ImageRef: "b.png", AudioRef: filepath.Join(dir, "gone.wav"), DurationMs: 20},
	}}}

	h := newHarness()
	var appended int
	s := New(cat, Deps{
		Surface:  h.surface,
		Player:   audio.DryRunPlayer{TempDir: t.TempDir()},
		Recorder: recorderFunc(func(models.ResponseRecord) { appended++ }),
	}, WithClock(h.clock))

	state, err := s.Run(context.Background())
	var rue *models.ResourceUnavailableError
	require.ErrorAs(t, err, &rue)
	assert.Equal(t, filepath.Join(dir, "gone.wav"), rue.Resource)
	assert.False(t, state.Completed)
	assert.Empty(t, state.Records)
	assert.Zero(t, appended)
	assert.NotEmpty(t, state.AbortedReason)
}

func TestRun_PresentErrorIsFatal(t *testing.T) {
	h := newHarness()
	h.surface.presentErr[stageKey{0, models.StatePresentingA}] = errors.New("display lost")

	state, err := h.scheduler(twoTrials(0, 0, 0)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "display lost")
	assert.Contains(t, err.Error(), "trial 1 presenting_a")
	assert.False(t, state.Completed)
}

func TestRun_EmitsLabelsAtOnset(t *testing.T) {
	ctrl := gomock.NewController(t)
	emitter := trigger.NewMockEmitter(ctrl)
	player := audio.NewMockPlayer(ctrl)

	cat := memCatalog{trials: []models.TrialSpec{{
		A: models.StimulusSpec{ImageRef: "a.png", AudioRef: "a.wav", DurationMs: 100, Label: "11"},
		B: models.StimulusSpec{ImageRef: "b.png", AudioRef: "b.wav", DurationMs: 200},
	}}}

	gomock.InOrder(
		emitter.EXPECT().Emit("11"),
	)
	gomock.InOrder(
		player.EXPECT().Play(gomock.Any(), "a.wav", 100*time.Millisecond).Return(nil),
		player.EXPECT().Play(gomock.Any(), "b.wav", 200*time.Millisecond).Return(nil),
	)

	h := newHarness()
	s := New(cat, Deps{Surface: h.surface, Player: player, Emitter: emitter}, WithClock(h.clock))
	var sent []string
	s.OnProgress(func(e ProgressEvent) {
		if e.EventType == EventTriggerSent {
			sent = append(sent, e.Details["label"].(string))
		}
	})

	state, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"11"}, sent)
	assert.Equal(t, "11", state.Records[0].LabelA)
	assert.Empty(t, state.Records[0].LabelB)
}

func TestRun_WithMockSurface(t *testing.T) {
	ctrl := gomock.NewController(t)
	surf := surface.NewMockSurface(ctrl)
	player := audio.NewMockPlayer(ctrl)
	clock := newFakeClock()

	cat := memCatalog{trials: []models.TrialSpec{{
		A: models.StimulusSpec{ImageRef: "a.png", AudioRef: "a.wav", DurationMs: 100},
		B: models.StimulusSpec{ImageRef: "b.png", AudioRef: "b.wav", DurationMs: 100},
	}}}

	onset := clock.Now()
	surf.EXPECT().Controls().Return(surface.Controls{}).AnyTimes()
	surf.EXPECT().Blank(gomock.Any()).Return(nil).AnyTimes()
	surf.EXPECT().Present(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req surface.PresentRequest) (surface.Presentation, error) {
			if req.Stage == models.StatePresentingB {
				return surface.Presentation{
					Onset:    onset,
					Response: &models.InputEvent{Key: "space", Kind: models.InputKeyboard, Timestamp: onset.Add(80 * time.Millisecond)},
				}, nil
			}
			return surface.Presentation{Onset: onset}, nil
		}).Times(2)
	player.EXPECT().Play(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	state, err := New(cat, Deps{Surface: surf, Player: player}, WithClock(clock)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Records, 1)
	assert.Equal(t, "space", *state.Records[0].PressedKey)
	assert.Equal(t, int64(80), *state.Records[0].ResponseTimeMs)
}

func TestRun_LabelEmittedDuringPresentation(t *testing.T) {
	ctrl := gomock.NewController(t)
	surf := surface.NewMockSurface(ctrl)
	emitter := trigger.NewMockEmitter(ctrl)
	player := audio.NewMockPlayer(ctrl)
	clock := newFakeClock()

	cat := memCatalog{trials: []models.TrialSpec{{
		A: models.StimulusSpec{ImageRef: "a.png", AudioRef: "a.wav", DurationMs: 100, Label: "21"},
		B: models.StimulusSpec{ImageRef: "b.png", AudioRef: "b.wav", DurationMs: 100},
	}}}

	emitted := make(chan struct{})
	emitter.EXPECT().Emit("21").Do(func(string) { close(emitted) })

	// Stimulus A is held until its label went out; B has no label.
	surf.EXPECT().Controls().Return(surface.Controls{}).AnyTimes()
	surf.EXPECT().Blank(gomock.Any()).Return(nil).AnyTimes()
	surf.EXPECT().Present(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req surface.PresentRequest) (surface.Presentation, error) {
			if req.Stage == models.StatePresentingA {
				select {
				case <-emitted:
				case <-time.After(time.Second):
					return surface.Presentation{}, errors.New("label not emitted while stimulus shown")
				}
			}
			return surface.Presentation{Onset: clock.Now()}, nil
		}).Times(2)
	player.EXPECT().Play(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	s := New(cat, Deps{Surface: surf, Player: player, Emitter: emitter}, WithClock(clock))
	var stages []models.State
	s.OnProgress(func(e ProgressEvent) {
		if e.EventType == EventTriggerSent {
			stages = append(stages, e.Stage)
		}
	})

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.State{models.StatePresentingA}, stages)
}

// sleepySurface holds each stimulus on the real clock.
type sleepySurface struct {
	*fakeSurface
}

func (s sleepySurface) Present(ctx context.Context, req surface.PresentRequest) (surface.Presentation, error) {
	onset := time.Now()
	time.Sleep(req.Window)
	return surface.Presentation{Onset: onset}, nil
}

func TestRun_RealClockElapsed(t *testing.T) {
	cat := memCatalog{
		trials: []models.TrialSpec{
			{A: models.StimulusSpec{DurationMs: 20}, B: models.StimulusSpec{DurationMs: 30}},
			{Index: 1, A: models.StimulusSpec{DurationMs: 20}, B: models.StimulusSpec{DurationMs: 30}},
		},
		timing: models.TimingConfig{InnerDelayMs: 10, OuterDelayMs: 25},
	}
	h := newHarness()
	s := New(cat, Deps{Surface: sleepySurface{h.surface}, Player: h.player})

	start := time.Now()
	state, err := s.Run(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, state.Records, 2)

	want := 2 * (20 + 10 + 30 + 25) * time.Millisecond
	assert.GreaterOrEqual(t, elapsed, want)
	assert.Less(t, elapsed, want+500*time.Millisecond)
}

func TestUniformJitter(t *testing.T) {
	j := NewUniformJitter(42)
	assert.Zero(t, j.Draw(0))
	assert.Zero(t, j.Draw(-time.Second))
	for i := 0; i < 100; i++ {
		d := j.Draw(50 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 50*time.Millisecond)
	}

	a, b := NewUniformJitter(7), NewUniformJitter(7)
	assert.Equal(t, a.Draw(time.Hour), b.Draw(time.Hour))
}

func TestRealClockSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, realClock{}.Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, realClock{}.Sleep(ctx, 0), context.Canceled)
	assert.NoError(t, realClock{}.Sleep(context.Background(), 0))
}
