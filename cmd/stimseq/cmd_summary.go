package main

import (
	"encoding/json"
	"fmt"

	"github.com/spboyer/stimseq/internal/dataset"
	"github.com/spboyer/stimseq/internal/recorder"
	"github.com/spboyer/stimseq/internal/statistics"
	"github.com/spf13/cobra"
)

func newSummaryCommand() *cobra.Command {
	var (
		asJSON bool
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "summary <result.csv>...",
		Short: "Summarize response times of result files",
		Long: `Print hit rate, response time statistics and a 95% bootstrap confidence
interval of the mean response time for each result file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			summaries := make(map[string]statistics.Summary, len(args))
			for _, path := range args {
				t, err := dataset.LoadTable(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				s, err := statistics.FromTable(t, recorder.ColResponseTime, recorder.ColResponseKind, seed)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if asJSON {
					summaries[path] = s
					continue
				}
				fmt.Fprintf(out, "\n%s\n", titleStyle.Render(path))
				printSummary(out, s)
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print summaries as JSON keyed by file")
	cmd.Flags().Int64Var(&seed, "seed", -1, "Bootstrap seed (negative for random)")

	return cmd
}
