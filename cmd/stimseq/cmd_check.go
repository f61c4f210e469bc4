package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spboyer/stimseq/internal/catalog"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/projectconfig"
	"github.com/spboyer/stimseq/internal/spinner"
	"github.com/spboyer/stimseq/internal/validation"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	var (
		probe      bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "check [catalog.csv]",
		Short: "Validate configuration and a catalog without presenting anything",
		Long: `Validate the project configuration and, when given, a catalog.

The configuration is checked against its schema. The catalog is decoded and
every referenced stimulus file must exist; all problems are listed together.
With --probe every image and WAV header is decoded as well.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), configPath, args, probe)
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Decode every image and WAV header")
	cmd.Flags().StringVar(&configPath, "config", "", "Validate this configuration file instead of the discovered one")

	return cmd
}

func runCheck(ctx context.Context, out, errOut io.Writer, configPath string, args []string, probe bool) error {
	var (
		cfg *projectconfig.ProjectConfig
		err error
	)
	if configPath != "" {
		cfg, err = checkConfigFile(configPath)
	} else {
		cfg, err = loadProjectConfig(".")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s config OK\n", okStyle.Render("✓"))

	if len(args) == 0 {
		return nil
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

	if probe {
		stop := spinner.Start(errOut, fmt.Sprintf("Probing stimuli of %s", cat.Name()))
		err := catalog.Probe(ctx, cat)
		stop()
		if err != nil {
			return err
		}
	}

	timing := cat.Timing()
	fmt.Fprintf(out, "%s %s: %d trials, inner %dms, outer %dms + up to %dms jitter\n",
		okStyle.Render("✓"), cat.Name(), cat.Len(),
		timing.InnerDelayMs, timing.OuterDelayMs, timing.OuterDelayJitterCeilMs)
	return nil
}

// checkConfigFile validates and loads an explicit configuration file.
func checkConfigFile(path string) (*projectconfig.ProjectConfig, error) {
	problems, err := validation.ValidateConfigFile(path)
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}
	if len(problems) > 0 {
		return nil, models.NewConfigError(path, problems...)
	}
	cfg, err := projectconfig.LoadFile(path)
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}
	return cfg, nil
}
