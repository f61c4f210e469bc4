// Package statistics summarizes response times across a session.
package statistics

import (
	"math"
	"math/rand/v2"
	"slices"
)

const (
	// ciLevel is the coverage of Summary.CI.
	ciLevel = 0.95

	// ciResamples is the number of bootstrap resamples drawn per interval.
	ciResamples = 5000
)

// RTInterval is a percentile bootstrap interval of the mean response time.
type RTInterval struct {
	LowerMs   float64 `json:"lower_ms"`
	UpperMs   float64 `json:"upper_ms"`
	Level     float64 `json:"level"`
	Resamples int     `json:"resamples"`
}

// meanRTInterval resamples the response times of one session with
// replacement. A negative seed draws a random one. With fewer than two
// responses the interval collapses onto their mean and nothing is drawn.
func meanRTInterval(rtsMs []float64, seed int64) RTInterval {
	m := mean(rtsMs)
	n := len(rtsMs)
	if n < 2 {
		return RTInterval{LowerMs: m, UpperMs: m, Level: ciLevel}
	}

	s := uint64(seed)
	if seed < 0 {
		s = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))

	means := make([]float64, ciResamples)
	for i := range means {
		var sum float64
		for range n {
			sum += rtsMs[rng.IntN(n)]
		}
		means[i] = sum / float64(n)
	}
	slices.Sort(means)

	tail := (1 - ciLevel) / 2
	lo := int(math.Floor(tail * ciResamples))
	hi := min(int(math.Floor((1-tail)*ciResamples)), ciResamples-1)
	return RTInterval{
		LowerMs:   means[lo],
		UpperMs:   means[hi],
		Level:     ciLevel,
		Resamples: ciResamples,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
