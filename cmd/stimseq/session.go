package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spboyer/stimseq/internal/archive"
	"github.com/spboyer/stimseq/internal/audio"
	"github.com/spboyer/stimseq/internal/catalog"
	"github.com/spboyer/stimseq/internal/hooks"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/projectconfig"
	"github.com/spboyer/stimseq/internal/recorder"
	"github.com/spboyer/stimseq/internal/scheduler"
	"github.com/spboyer/stimseq/internal/session"
	"github.com/spboyer/stimseq/internal/spinner"
	"github.com/spboyer/stimseq/internal/statistics"
	"github.com/spboyer/stimseq/internal/surface"
	"github.com/spboyer/stimseq/internal/template"
	"github.com/spboyer/stimseq/internal/trigger"
)

// sessionOptions are the per-invocation switches shared by run and batch.
type sessionOptions struct {
	test       bool
	dryRun     bool
	sessionLog bool
	noTrigger  bool
	mouse      bool
	captions   bool
	verbose    bool
	seed       uint64
	resultsDir string
}

func sessionOptionsFromFlags() sessionOptions {
	return sessionOptions{
		test:       testRun,
		dryRun:     dryRun,
		sessionLog: sessionLogFlag,
		noTrigger:  noTrigger,
		mouse:      mouseInput,
		captions:   showCaptions,
		verbose:    verbose,
		seed:       jitterSeed,
		resultsDir: resultsDirFlag,
	}
}

// sessionResult is what one catalog run produced.
type sessionResult struct {
	Catalog string
	State   *models.SessionState
	Paths   []string
	Summary statistics.Summary
	Test    bool
}

// sessionRunner owns the devices of an invocation (surface, player, trigger
// link, session log) so batch mode can run several catalogs on them.
type sessionRunner struct {
	cfg         *projectconfig.ProjectConfig
	participant models.Participant
	opts        sessionOptions
	out         io.Writer
	errOut      io.Writer

	surface  surface.Surface
	player   audio.Player
	emitter  trigger.Emitter
	logger   session.Logger
	sinks    []recorder.Sink
	uploader *archive.Uploader
	tempDir  string

	closeOnce sync.Once
}

func newSessionRunner(ctx context.Context, cfg *projectconfig.ProjectConfig, participant models.Participant, out, errOut io.Writer) (*sessionRunner, error) {
	return newSessionRunnerWithOptions(ctx, cfg, participant, sessionOptionsFromFlags(), out, errOut)
}

func newSessionRunnerWithOptions(ctx context.Context, cfg *projectconfig.ProjectConfig, participant models.Participant, opts sessionOptions, out, errOut io.Writer) (_ *sessionRunner, err error) {
	r := &sessionRunner{
		cfg:         cfg,
		participant: participant,
		opts:        opts,
		out:         out,
		errOut:      errOut,
		logger:      session.NopLogger{},
		emitter:     trigger.NopEmitter{},
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	if r.tempDir, err = ensureDir(cfg.Resolve(cfg.Paths.Temp)); err != nil {
		return nil, err
	}
	if n, err := audio.SweepTemp(r.tempDir); err != nil {
		slog.Warn("sweeping stale clips failed", "dir", r.tempDir, "error", err)
	} else if n > 0 {
		slog.Info("removed stale clips", "count", n)
	}

	if opts.dryRun {
		r.player = audio.DryRunPlayer{TempDir: r.tempDir}
	} else {
		p, err := audio.NewCommandPlayer(cfg.Audio.Player, audio.WithTempDir(r.tempDir))
		if err != nil {
			return nil, err
		}
		r.player = p
	}

	if !opts.test {
		if r.sinks, err = resultSinks(cfg, opts.resultsDir); err != nil {
			return nil, err
		}
		if cfg.Archive.Enabled() {
			if r.uploader, err = archive.New(cfg.Archive); err != nil {
				return nil, err
			}
		}
	}

	if opts.sessionLog || (cfg.SessionLog != nil && *cfg.SessionLog) {
		logger, err := session.NewJSONLogger(session.DefaultLogPath(cfg.Resolve(cfg.Paths.Logs)))
		if err != nil {
			return nil, err
		}
		r.logger = logger
		slog.Info("writing session log", "path", logger.Path())
	}

	if err := r.dialTrigger(ctx); err != nil {
		return nil, err
	}

	r.surface, err = newSurface(surface.TerminalOptions{
		PauseKey: cfg.Keys.Pause,
		AbortKey: cfg.Keys.Abort,
		Mouse:    opts.mouse,
		Captions: opts.captions,
	})
	if err != nil {
		return nil, fmt.Errorf("opening display: %w", err)
	}
	return r, nil
}

// dialTrigger connects the trigger link. A link that cannot be reached is
// reported and the session continues without triggers.
func (r *sessionRunner) dialTrigger(ctx context.Context) error {
	tc := r.cfg.Trigger
	if r.opts.noTrigger || tc.Enabled == nil || !*tc.Enabled {
		return nil
	}
	e, err := trigger.Dial(ctx, trigger.Config{
		TCPAddress:  tc.TCPAddress,
		SerialPort:  tc.SerialPort,
		BaudRate:    tc.BaudRate,
		ReadyDelay:  time.Duration(tc.ReadyDelayMs) * time.Millisecond,
		Prefix:      tc.Prefix,
		DialTimeout: time.Duration(tc.DialTimeoutMs) * time.Millisecond,
		Observer:    r.observeTrigger,
	})
	var linkErr *models.TriggerLinkError
	switch {
	case errors.As(err, &linkErr):
		r.observeTrigger(linkErr)
		slog.Warn("trigger link unavailable, continuing without triggers", "error", err)
		return nil
	case err != nil:
		return err
	}
	r.emitter = e
	return nil
}

func (r *sessionRunner) observeTrigger(err *models.TriggerLinkError) {
	trigger.LogObserver(err)
	logEvent(r.logger, session.NewEvent(session.EventTriggerFailure, session.TriggerData(err.Label, err.Op, err.Err)))
}

func resultSinks(cfg *projectconfig.ProjectConfig, resultsDir string) ([]recorder.Sink, error) {
	dir := resultsDir
	if dir == "" {
		dir = cfg.Resolve(cfg.Paths.Results)
	}
	dbPath := cfg.Resolve(cfg.Results.SQLitePath)
	if dbPath == "" {
		dbPath = filepath.Join(dir, projectconfig.DefaultSQLiteFile)
	}

	switch cfg.Results.Format {
	case projectconfig.ResultsFormatCSV, "":
		return []recorder.Sink{recorder.CSVSink{Dir: dir}}, nil
	case projectconfig.ResultsFormatSQLite:
		return []recorder.Sink{recorder.SQLiteSink{Path: dbPath}}, nil
	case projectconfig.ResultsFormatBoth:
		return []recorder.Sink{recorder.CSVSink{Dir: dir}, recorder.SQLiteSink{Path: dbPath}}, nil
	default:
		return nil, models.NewConfigError("results.format", fmt.Sprintf("unknown results format %q (supported: csv, sqlite, both)", cfg.Results.Format))
	}
}

// probe decodes every stimulus header while a spinner runs.
func (r *sessionRunner) probe(ctx context.Context, cat *catalog.Catalog) error {
	stop := spinner.Start(r.errOut, fmt.Sprintf("Checking stimuli of %s", cat.Name()))
	err := catalog.Probe(ctx, cat)
	stop()
	return err
}

// run presents every trial of cat and finalizes its results. suffix is
// appended to the result name (batch mode uses the catalog name).
func (r *sessionRunner) run(ctx context.Context, cat *catalog.Catalog, suffix string) (*sessionResult, error) {
	sessionID := session.NewSessionID()
	if l, ok := r.logger.(interface{ SetSessionID(string) }); ok {
		l.SetSessionID(sessionID)
	}

	vars := &template.Context{
		SessionID:   sessionID,
		Participant: r.participant.ID,
		Param1:      r.participant.Param1,
		Param2:      r.participant.Param2,
		Catalog:     cat.Name(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	hookRunner := &hooks.Runner{Verbose: r.opts.verbose, Env: r.hookEnv(cat, nil, nil), Vars: vars}
	if !r.opts.test {
		if err := hookRunner.Execute(ctx, hooks.BeforeSession, r.cfg.Hooks.BeforeSession); err != nil {
			return nil, &models.ConfigError{Source: "hooks." + hooks.BeforeSession, Err: err}
		}
	}

	var rec *recorder.Recorder
	deps := scheduler.Deps{
		Surface: r.surface,
		Player:  r.player,
		Emitter: r.emitter,
	}
	if !r.opts.test {
		rec = recorder.New(recorder.Result{
			SessionID:   sessionID,
			Participant: r.participant,
			Catalog:     cat.Name(),
			Table:       cat.Table(),
			Suffix:      suffix,
		}, r.sinks...)
		deps.Recorder = rec
	}

	var schedOpts []scheduler.Option
	if r.opts.seed != 0 {
		schedOpts = append(schedOpts, scheduler.WithJitter(scheduler.NewUniformJitter(r.opts.seed)))
	}
	sched := scheduler.New(cat, deps, schedOpts...)
	sched.OnProgress(newSessionEventAdapter(r.logger, cat.Source(), r.participant.ID).listen)
	if r.opts.verbose {
		sched.OnProgress(verboseProgressListener(r.errOut))
	}

	state, runErr := sched.Run(ctx)
	res := &sessionResult{
		Catalog: cat.Name(),
		State:   state,
		Summary: statistics.FromRecords(state.Records, -1),
		Test:    r.opts.test,
	}
	if runErr != nil && !errors.Is(runErr, models.ErrAborted) {
		logEvent(r.logger, session.NewEvent(session.EventError, session.ErrorData(runErr.Error(), nil)))
	}
	if r.opts.test {
		return res, runErr
	}

	// Results are written even when ctx was cancelled.
	finalCtx := context.WithoutCancel(ctx)
	rec.FromState(state)
	paths, finalErr := rec.Finalize(finalCtx, state.Completed, state.AbortedReason)
	res.Paths = paths
	for _, p := range paths {
		logEvent(r.logger, session.NewEvent(session.EventResultsWritten, map[string]any{"path": p}))
	}

	if r.uploader != nil && len(paths) > 0 {
		keys, err := r.uploader.Upload(finalCtx, paths...)
		if err != nil {
			slog.Warn("archiving results failed, local files kept", "error", err)
		} else {
			slog.Info("archived results", "keys", keys)
		}
	}

	hookRunner.Env = r.hookEnv(cat, state, paths)
	vars.Completed = state.Completed
	vars.Results = paths
	if err := hookRunner.Execute(finalCtx, hooks.AfterSession, r.cfg.Hooks.AfterSession); err != nil {
		slog.Warn("after_session hook failed", "error", err)
		finalErr = errors.Join(finalErr, err)
	}

	if runErr != nil {
		return res, runErr
	}
	return res, finalErr
}

func (r *sessionRunner) hookEnv(cat *catalog.Catalog, state *models.SessionState, paths []string) []string {
	env := []string{
		"STIMSEQ_PARTICIPANT=" + r.participant.ID,
		"STIMSEQ_PARAM1=" + r.participant.Param1,
		"STIMSEQ_PARAM2=" + r.participant.Param2,
		"STIMSEQ_CATALOG=" + cat.Source(),
	}
	if state != nil {
		env = append(env,
			"STIMSEQ_COMPLETED="+strconv.FormatBool(state.Completed),
			"STIMSEQ_RESULTS="+strings.Join(paths, string(filepath.ListSeparator)),
		)
	}
	return env
}

// Close releases the surface, trigger link and session log. It is safe to
// call more than once.
func (r *sessionRunner) Close() {
	r.closeOnce.Do(func() {
		if r.surface != nil {
			if err := r.surface.Close(); err != nil {
				slog.Debug("closing surface failed", "error", err)
			}
		}
		if r.emitter != nil {
			if err := r.emitter.Close(); err != nil {
				slog.Warn("closing trigger link failed", "error", err)
			}
		}
		if r.logger != nil {
			if err := r.logger.Close(); err != nil {
				slog.Warn("closing session log failed", "error", err)
			}
		}
	})
}

func logEvent(l session.Logger, ev session.Event) {
	if err := l.Log(ev); err != nil {
		slog.Warn("writing session log failed", "event", ev.Type, "error", err)
	}
}
