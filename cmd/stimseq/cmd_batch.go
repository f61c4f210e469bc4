package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spboyer/stimseq/internal/audio"
	"github.com/spboyer/stimseq/internal/catalog"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spf13/cobra"
)

func newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [dir]",
		Short: "Run every catalog in a directory",
		Long: `Run every *.csv catalog in dir, in lexical order, for the same participant.

Each catalog gets its own result file with the catalog name appended to the
participant-derived name. The batch stops at the first aborted or failed
session. dir defaults to paths.catalogs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: batchCommandE,
	}

	addSessionFlags(cmd)

	return cmd
}

func batchCommandE(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadProjectConfig(".")
	if err != nil {
		return err
	}

	dir := cfg.Resolve(cfg.Paths.Catalogs)
	if len(args) == 1 {
		dir = args[0]
	}
	paths, err := listCatalogs(dir)
	if err != nil {
		return err
	}

	// Load everything first so a broken catalog is reported before any
	// stimulus is shown.
	opts := catalog.Options{
		ImagesDir: cfg.Resolve(cfg.Paths.Images),
		AudiosDir: cfg.Resolve(cfg.Paths.Audios),
	}
	cats := make([]*catalog.Catalog, 0, len(paths))
	for _, p := range paths {
		c, err := catalog.Load(p, opts)
		if err != nil {
			return err
		}
		cats = append(cats, c)
	}

	participant, err := participantFromFlags(cmd, true)
	if err != nil {
		return err
	}

	runner, err := newSessionRunner(ctx, cfg, participant, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer runner.Close()

	if probeFirst {
		for _, c := range cats {
			if err := runner.probe(ctx, c); err != nil {
				return err
			}
		}
	}

	var results []*sessionResult
	var runErr error
	for i, c := range cats {
		slog.Info("starting catalog", "catalog", c.Name(), "index", i+1, "of", len(cats))
		res, err := runner.run(ctx, c, c.Name())
		if res != nil {
			results = append(results, res)
		}
		if _, serr := audio.SweepTemp(runner.tempDir); serr != nil {
			slog.Warn("sweeping clips failed", "dir", runner.tempDir, "error", serr)
		}
		if err != nil {
			runErr = fmt.Errorf("catalog %s: %w", c.Name(), err)
			break
		}
		if res != nil && res.State != nil && !res.State.Completed {
			runErr = fmt.Errorf("catalog %s: %w", c.Name(), models.ErrAborted)
			break
		}
	}
	runner.Close()

	out := cmd.OutOrStdout()
	for _, res := range results {
		printSessionReport(out, res)
	}
	if skipped := len(cats) - len(results); skipped > 0 && runErr != nil {
		fmt.Fprintf(out, "\n%d catalog(s) not run.\n", skipped)
	}
	return runErr
}

// listCatalogs returns the *.csv files directly inside dir in lexical order.
func listCatalogs(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.NewConfigError(dir, "catalog directory does not exist")
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, models.NewConfigError(dir, "not a directory")
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, models.NewConfigError(dir, "no *.csv catalogs found")
	}
	sort.Strings(paths)
	return paths, nil
}
