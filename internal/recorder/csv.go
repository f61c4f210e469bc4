package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spboyer/stimseq/internal/dataset"
)

// CSVSink writes one CSV file per session into Dir.
type CSVSink struct {
	Dir string
}

// Write implements Sink. The file is written under a temporary name and
// renamed into place once complete.
func (s CSVSink) Write(_ context.Context, res *Result) ([]string, error) {
	base, err := BaseName(res.Participant, res.Suffix, res.Completed)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}
	path, err := uniquePath(s.Dir, base, ".csv")
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.Dir, ".stimseq-*.csv")
	if err != nil {
		return nil, fmt.Errorf("creating result file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	headers, rows := res.Rows()
	if err := dataset.WriteTable(tmp, headers, rows); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("saving %s: %w", filepath.Base(path), err)
	}
	return []string{path}, nil
}
