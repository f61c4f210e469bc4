// Package recorder accumulates trial outcomes and persists them when a
// session ends, whether it completed or not.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/spboyer/stimseq/internal/dataset"
	"github.com/spboyer/stimseq/internal/models"
)

// Result columns appended after the catalog columns.
const (
	ColResponse     = "response"
	ColResponseKind = "response_kind"
	ColResponseTime = "response_time"
)

// ResultColumns are the columns added to every catalog row.
var ResultColumns = []string{ColResponse, ColResponseKind, ColResponseTime}

// Result is everything a Sink persists for one session.
type Result struct {
	SessionID   string
	Participant models.Participant

	// Catalog is the catalog name; Table holds its rows so input columns
	// can be echoed next to each response.
	Catalog string
	Table   *dataset.Table

	// Suffix is appended to the participant-derived name, e.g. the catalog
	// name in batch mode.
	Suffix string

	Records       []models.ResponseRecord
	Completed     bool
	AbortedReason string
	StartedAt     time.Time
	EndedAt       time.Time
}

// Rows returns the result table: catalog columns in input order followed
// by ResultColumns, one row per record.
func (r *Result) Rows() ([]string, [][]string) {
	headers := append(append([]string{}, r.Table.Headers...), ResultColumns...)
	rows := make([][]string, 0, len(r.Records))
	for _, rec := range r.Records {
		row := make([]string, 0, len(headers))
		if rec.TrialIndex >= 0 && rec.TrialIndex < r.Table.Len() {
			row = append(row, r.Table.Values(rec.TrialIndex)...)
		} else {
			row = append(row, make([]string, len(r.Table.Headers))...)
		}
		row = append(row, responseCells(rec)...)
		rows = append(rows, row)
	}
	return headers, rows
}

func responseCells(rec models.ResponseRecord) []string {
	cells := make([]string, 3)
	if rec.PressedKey != nil {
		cells[0] = *rec.PressedKey
	}
	if rec.ResponseKind != nil {
		cells[1] = string(*rec.ResponseKind)
	}
	if rec.ResponseTimeMs != nil {
		cells[2] = strconv.FormatInt(*rec.ResponseTimeMs, 10)
	}
	return cells
}

// Sink persists a finalized session and returns the locations written.
type Sink interface {
	Write(ctx context.Context, res *Result) ([]string, error)
}

// ErrFinalized is returned when a recorder is finalized twice.
var ErrFinalized = errors.New("recorder already finalized")

// Recorder is the ordered record accumulator for one session.
type Recorder struct {
	mu        sync.Mutex
	base      Result
	records   []models.ResponseRecord
	sinks     []Sink
	finalized bool
}

// New creates a recorder. base carries the session metadata; its Records,
// Completed and AbortedReason are filled in by Finalize.
func New(base Result, sinks ...Sink) *Recorder {
	if base.Table == nil {
		base.Table = &dataset.Table{}
	}
	return &Recorder{
		base:    base,
		records: make([]models.ResponseRecord, 0, base.Table.Len()),
		sinks:   sinks,
	}
}

// Append adds rec after all earlier records.
func (r *Recorder) Append(rec models.ResponseRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Len returns the number of records appended.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Finalize hands the accumulated records to every sink. Sinks run even if
// an earlier one fails, so a partial session is never lost to one bad sink.
func (r *Recorder) Finalize(ctx context.Context, completed bool, reason string) ([]string, error) {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return nil, ErrFinalized
	}
	r.finalized = true
	res := r.base
	res.Records = append([]models.ResponseRecord(nil), r.records...)
	r.mu.Unlock()

	res.Completed = completed
	res.AbortedReason = reason
	if res.EndedAt.IsZero() {
		res.EndedAt = time.Now()
	}

	var (
		written []string
		errs    []error
	)
	for _, s := range r.sinks {
		paths, err := s.Write(ctx, &res)
		if err != nil {
			slog.Error("writing results failed", "sink", fmt.Sprintf("%T", s), "error", err)
			errs = append(errs, err)
			continue
		}
		written = append(written, paths...)
	}
	return written, errors.Join(errs...)
}

// FromState copies the outcome timestamps of state into the recorder's
// metadata. Call it before Finalize.
func (r *Recorder) FromState(state *models.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base.StartedAt = state.StartedAt
	r.base.EndedAt = state.EndedAt
}
