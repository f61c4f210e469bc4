package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spboyer/stimseq/internal/catalog"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/recorder"
	"github.com/spboyer/stimseq/internal/surface"
	"github.com/spboyer/stimseq/internal/wizard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	participantID  string
	runParam1      string
	runParam2      string
	testRun        bool
	dryRun         bool
	sessionLogFlag bool
	noTrigger      bool
	mouseInput     bool
	showCaptions   bool
	probeFirst     bool
	verbose        bool
	jitterSeed     uint64
	resultsDirFlag string
)

// newSurface opens the presentation surface. Tests replace it.
var newSurface = func(opts surface.TerminalOptions) (surface.Surface, error) {
	t, err := surface.NewTerminal(os.Stdin, os.Stdout, opts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// isInteractive reports whether the participant form can be shown.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <catalog.csv>",
		Short: "Run a presentation session",
		Long: `Run every trial of a catalog for one participant.

Each trial shows stimulus A with its audio clip, waits the inner delay, shows
stimulus B while capturing the first key press or mouse click, then waits the
outer delay plus a random jitter. The pause key holds the session at the next
stage boundary; the abort key ends it there and writes an incomplete result.

Relative catalog names are also looked up in paths.catalogs.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	addSessionFlags(cmd)
	cmd.Flags().BoolVar(&testRun, "test", false, "Present only the first trial and write no result file")

	return cmd
}

// addSessionFlags registers the flags shared by run and batch.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&participantID, "participant", "p", "", "Participant identifier (prompted for on a terminal when omitted)")
	cmd.Flags().StringVar(&runParam1, "param1", "", "Optional first parameter appended to the result name")
	cmd.Flags().StringVar(&runParam2, "param2", "", "Optional second parameter appended to the result name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Wait out each clip instead of playing it")
	cmd.Flags().BoolVar(&sessionLogFlag, "session-log", false, "Write a JSONL session event log to paths.logs")
	cmd.Flags().BoolVar(&noTrigger, "no-trigger", false, "Disable the trigger link even when configured")
	cmd.Flags().BoolVar(&mouseInput, "mouse", true, "Accept mouse buttons as responses")
	cmd.Flags().BoolVar(&showCaptions, "captions", false, "Print stimulus file names under each image")
	cmd.Flags().BoolVar(&probeFirst, "probe", false, "Decode every stimulus header before starting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print stage progress to stderr")
	cmd.Flags().Uint64Var(&jitterSeed, "seed", 0, "Seed for the inter-trial jitter (0 picks one)")
	cmd.Flags().StringVar(&resultsDirFlag, "results-dir", "", "Directory for result files (overrides paths.results)")
}

func runCommandE(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadProjectConfig(".")
	if err != nil {
		return err
	}

	path, err := resolveCatalog(cfg, args[0])
	if err != nil {
		return err
	}
	cat, err := catalog.Load(path, catalog.Options{
		ImagesDir: cfg.Resolve(cfg.Paths.Images),
		AudiosDir: cfg.Resolve(cfg.Paths.Audios),
	})
	if err != nil {
		return err
	}
	if testRun {
		cat = cat.Head(1)
	}

	participant, err := participantFromFlags(cmd, !testRun)
	if err != nil {
		return err
	}

	runner, err := newSessionRunner(ctx, cfg, participant, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer runner.Close()

	if probeFirst {
		if err := runner.probe(ctx, cat); err != nil {
			return err
		}
	}

	res, err := runner.run(ctx, cat, "")
	runner.Close()
	if res != nil {
		printSessionReport(cmd.OutOrStdout(), res)
	}
	return err
}

// participantFromFlags builds the participant from flags, asking on the
// terminal for what is missing. required is false for test runs.
func participantFromFlags(cmd *cobra.Command, required bool) (models.Participant, error) {
	p := models.Participant{ID: participantID, Param1: runParam1, Param2: runParam2}
	if !required {
		return p, nil
	}
	if strings.TrimSpace(p.ID) == "" {
		if !isInteractive() {
			return p, models.NewConfigError("participant", "--participant is required when stdin is not a terminal")
		}
		got, err := wizard.RunParticipantWizard(os.Stdin, cmd.OutOrStdout(), p)
		if err != nil {
			return p, &models.ConfigError{Source: "participant", Err: err}
		}
		p = *got
	}
	// The identifier must survive sanitizing into a result file name.
	if _, err := recorder.BaseName(p, "", true); err != nil {
		return p, err
	}
	return p, nil
}
