// Package catalog turns an experiment CSV into an immutable, validated list of
// trials plus the session timing configuration.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spboyer/stimseq/internal/dataset"
	"github.com/spboyer/stimseq/internal/models"
)

// Column names of the catalog file.
const (
	ColImage1 = "image1"
	ColImage2 = "image2"
	ColAudio1 = "audio1"
	ColAudio2 = "audio2"
	ColLabel1 = "label1"
	ColLabel2 = "label2"

	ColInnerDelay     = "inner_delay"
	ColOuterDelay     = "outer_delay"
	ColOuterDelayCeil = "outer_delay_ceil"
	ColFirstStim      = "first_stim"
	ColSecondStim     = "second_stim"
)

var (
	stimulusColumns = []string{ColImage1, ColImage2, ColAudio1, ColAudio2}
	timingColumns   = []string{ColInnerDelay, ColOuterDelay, ColOuterDelayCeil, ColFirstStim, ColSecondStim}
)

// Options controls how stimulus names are resolved.
type Options struct {
	// ImagesDir and AudiosDir are prepended to relative image and audio names.
	ImagesDir string
	AudiosDir string

	// SkipFileCheck disables the existence check for referenced files.
	SkipFileCheck bool
}

// Catalog is the validated trial list. It is read-only once built.
type Catalog struct {
	source string
	table  *dataset.Table
	trials []models.TrialSpec
	timing models.TimingConfig
}

type timingRow struct {
	InnerDelay     int `mapstructure:"inner_delay"`
	OuterDelay     int `mapstructure:"outer_delay"`
	OuterDelayCeil int `mapstructure:"outer_delay_ceil"`
	FirstStim      int `mapstructure:"first_stim"`
	SecondStim     int `mapstructure:"second_stim"`
}

type trialRow struct {
	Image1     string `mapstructure:"image1"`
	Image2     string `mapstructure:"image2"`
	Audio1     string `mapstructure:"audio1"`
	Audio2     string `mapstructure:"audio2"`
	Label1     string `mapstructure:"label1"`
	Label2     string `mapstructure:"label2"`
	FirstStim  *int   `mapstructure:"first_stim"`
	SecondStim *int   `mapstructure:"second_stim"`
}

// Load reads and validates the catalog at path.
func Load(path string, opts Options) (*Catalog, error) {
	table, err := dataset.LoadTable(path)
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}
	return New(path, table, opts)
}

// New validates an already parsed table. Every problem found (bad columns,
// bad numbers, negative durations, missing files) is reported in a single
// ConfigError.
func New(source string, table *dataset.Table, opts Options) (*Catalog, error) {
	var problems []string

	for _, col := range append(append([]string{}, stimulusColumns...), timingColumns...) {
		if !table.HasColumn(col) {
			problems = append(problems, fmt.Sprintf("missing column %q", col))
		}
	}
	if len(problems) > 0 {
		return nil, models.NewConfigError(source, problems...)
	}
	if table.Len() == 0 {
		return nil, models.NewConfigError(source, "catalog has no trials")
	}

	var timing timingRow
	first := table.Rows[0]
	for _, col := range timingColumns {
		if first[col] == "" {
			problems = append(problems, fmt.Sprintf("row 1: %s is required", col))
		}
	}
	if err := decodeRow(first, &timing); err != nil {
		problems = append(problems, fmt.Sprintf("row 1: %v", err))
	}
	timingValues := []int{timing.InnerDelay, timing.OuterDelay, timing.OuterDelayCeil, timing.FirstStim, timing.SecondStim}
	for i, v := range timingValues {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("row 1: %s must be >= 0, got %d", timingColumns[i], v))
		}
	}

	trials := make([]models.TrialSpec, 0, table.Len())
	for i, row := range table.Rows {
		var tr trialRow
		if err := decodeRow(nonEmpty(row), &tr); err != nil {
			problems = append(problems, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		for _, col := range stimulusColumns {
			if row[col] == "" {
				problems = append(problems, fmt.Sprintf("row %d: %s is empty", i+1, col))
			}
		}

		durA, durB := timing.FirstStim, timing.SecondStim
		if tr.FirstStim != nil {
			durA = *tr.FirstStim
		}
		if tr.SecondStim != nil {
			durB = *tr.SecondStim
		}
		if i > 0 && (durA < 0 || durB < 0) {
			problems = append(problems, fmt.Sprintf("row %d: stimulus durations must be >= 0", i+1))
		}

		trials = append(trials, models.TrialSpec{
			Index: i,
			A: models.StimulusSpec{
				ImageRef:   resolve(opts.ImagesDir, tr.Image1),
				AudioRef:   resolve(opts.AudiosDir, tr.Audio1),
				DurationMs: durA,
				Label:      tr.Label1,
			},
			B: models.StimulusSpec{
				ImageRef:   resolve(opts.ImagesDir, tr.Image2),
				AudioRef:   resolve(opts.AudiosDir, tr.Audio2),
				DurationMs: durB,
				Label:      tr.Label2,
			},
		})
	}

	if len(problems) == 0 && !opts.SkipFileCheck {
		problems = append(problems, missingFiles(trials)...)
	}
	if len(problems) > 0 {
		return nil, models.NewConfigError(source, problems...)
	}

	return &Catalog{
		source: source,
		table:  table,
		trials: trials,
		timing: models.TimingConfig{
			InnerDelayMs:           timing.InnerDelay,
			OuterDelayMs:           timing.OuterDelay,
			OuterDelayJitterCeilMs: timing.OuterDelayCeil,
		},
	}, nil
}

// Source returns the path the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// Name returns the catalog file name without directory or extension.
func (c *Catalog) Name() string {
	base := filepath.Base(c.source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Len returns the number of trials.
func (c *Catalog) Len() int { return len(c.trials) }

// Trials returns a copy of the trial list.
func (c *Catalog) Trials() []models.TrialSpec {
	return append([]models.TrialSpec(nil), c.trials...)
}

// Trial returns trial i.
func (c *Catalog) Trial(i int) models.TrialSpec { return c.trials[i] }

// Timing returns the session timing configuration.
func (c *Catalog) Timing() models.TimingConfig { return c.timing }

// Table returns the source table, used to echo input columns into results.
func (c *Catalog) Table() *dataset.Table { return c.table }

// Head returns a catalog holding only the first n trials.
func (c *Catalog) Head(n int) *Catalog {
	if n >= len(c.trials) {
		return c
	}
	return &Catalog{
		source: c.source,
		table:  &dataset.Table{Headers: c.table.Headers, Rows: c.table.Rows[:n]},
		trials: c.trials[:n],
		timing: c.timing,
	}
}

func resolve(dir, name string) string {
	if name == "" || dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func nonEmpty(row dataset.Row) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func missingFiles(trials []models.TrialSpec) []string {
	var problems []string
	checked := make(map[string]bool)
	check := func(kind, path string, row int) {
		if path == "" || checked[path] {
			return
		}
		checked[path] = true
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems = append(problems, fmt.Sprintf("row %d: %s file %s not found", row, kind, path))
		case err != nil:
			problems = append(problems, fmt.Sprintf("row %d: %s file %s: %v", row, kind, path, err))
		case info.IsDir():
			problems = append(problems, fmt.Sprintf("row %d: %s file %s is a directory", row, kind, path))
		}
	}
	for _, t := range trials {
		check(ColImage1, t.A.ImageRef, t.Index+1)
		check(ColAudio1, t.A.AudioRef, t.Index+1)
		check(ColImage2, t.B.ImageRef, t.Index+1)
		check(ColAudio2, t.B.AudioRef, t.Index+1)
	}
	return problems
}

func decodeRow(row map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       numberHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(row)
}

// numberHook parses integer cells written as floats ("500.0") the way
// spreadsheet exports often do, and rejects fractional values.
func numberHook(from reflect.Kind, to reflect.Kind, data any) (any, error) {
	if from != reflect.String || to != reflect.Int {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%q is not a whole number of milliseconds", s)
	}
	return int(f), nil
}
