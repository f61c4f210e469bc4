package statistics

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/spboyer/stimseq/internal/dataset"
	"github.com/spboyer/stimseq/internal/models"
)

// Summary describes the responses collected in one session.
type Summary struct {
	Trials    int     `json:"trials"`
	Responded int     `json:"responded"`
	HitRate   float64 `json:"hit_rate"`

	MeanMs   float64 `json:"mean_ms"`
	SDMs     float64 `json:"sd_ms"`
	MedianMs float64 `json:"median_ms"`
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`

	// CI is the bootstrap interval of the mean response time.
	CI RTInterval `json:"ci"`

	// ByKind counts responses per input kind ("keyboard", "mouse").
	ByKind map[string]int `json:"by_kind,omitempty"`
}

// Summarize computes a Summary over trials trials of which responseTimes
// captured a response. seed < 0 uses a non-deterministic bootstrap.
func Summarize(trials int, responseTimes []float64, seed int64) Summary {
	s := Summary{Trials: trials, Responded: len(responseTimes)}
	if trials > 0 {
		s.HitRate = float64(len(responseTimes)) / float64(trials)
	}
	if len(responseTimes) == 0 {
		return s
	}

	sorted := append([]float64(nil), responseTimes...)
	sort.Float64s(sorted)

	s.MeanMs = mean(sorted)
	s.SDMs = stddev(sorted, s.MeanMs)
	s.MedianMs = median(sorted)
	s.MinMs = sorted[0]
	s.MaxMs = sorted[len(sorted)-1]
	s.CI = meanRTInterval(responseTimes, seed)
	return s
}

// FromRecords summarizes the records of a finished session.
func FromRecords(records []models.ResponseRecord, seed int64) Summary {
	var rts []float64
	kinds := make(map[string]int)
	for _, r := range records {
		if r.ResponseTimeMs != nil {
			rts = append(rts, float64(*r.ResponseTimeMs))
		}
		if r.ResponseKind != nil {
			kinds[string(*r.ResponseKind)]++
		}
	}
	s := Summarize(len(records), rts, seed)
	if len(kinds) > 0 {
		s.ByKind = kinds
	}
	return s
}

// FromTable summarizes a result file previously written by the recorder.
// rtColumn holds integer milliseconds or is empty when there was no
// response; kindColumn may be empty to skip the per-kind counts.
func FromTable(t *dataset.Table, rtColumn, kindColumn string, seed int64) (Summary, error) {
	if !t.HasColumn(rtColumn) {
		return Summary{}, fmt.Errorf("result has no %q column", rtColumn)
	}
	var rts []float64
	kinds := make(map[string]int)
	for i, row := range t.Rows {
		cell := row[rtColumn]
		if cell != "" {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return Summary{}, fmt.Errorf("row %d: %s %q is not a number", i+1, rtColumn, cell)
			}
			rts = append(rts, v)
		}
		if kindColumn != "" {
			if k := row[kindColumn]; k != "" {
				kinds[k]++
			}
		}
	}
	s := Summarize(t.Len(), rts, seed)
	if len(kinds) > 0 {
		s.ByKind = kinds
	}
	return s, nil
}

// stddev is the sample standard deviation; 0 for fewer than two values.
func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
