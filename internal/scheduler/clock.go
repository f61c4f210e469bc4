package scheduler

import (
	"context"
	"math/rand/v2"
	"time"
)

// Clock is the scheduler's time source.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jitter draws the random part of the inter-trial gap.
type Jitter interface {
	// Draw returns a value in [0, ceil). It returns 0 when ceil <= 0.
	Draw(ceil time.Duration) time.Duration
}

// UniformJitter draws whole milliseconds uniformly.
type UniformJitter struct {
	rng *rand.Rand
}

// NewUniformJitter seeds a jitter source. Equal seeds give equal sequences.
func NewUniformJitter(seed uint64) *UniformJitter {
	return &UniformJitter{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Draw implements Jitter.
func (j *UniformJitter) Draw(ceil time.Duration) time.Duration {
	ms := ceil.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return time.Duration(j.rng.Int64N(ms)) * time.Millisecond
}
