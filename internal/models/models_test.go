package models

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{name: "bare", err: &ConfigError{}, want: "config error"},
		{name: "one problem", err: NewConfigError("exp.csv", "missing column \"image1\""), want: "config error [exp.csv]: missing column \"image1\""},
		{
			name: "several problems",
			err:  NewConfigError("exp.csv", "row 1: a", "row 2: b"),
			want: "config error [exp.csv]: 2 problems\n  - row 1: a\n  - row 2: b",
		},
		{name: "wrapped", err: &ConfigError{Source: "hooks", Err: io.EOF}, want: "config error [hooks]: EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	cfg := fmt.Errorf("loading: %w", &ConfigError{Source: "x", Err: io.EOF})
	assert.True(t, IsConfigError(cfg))
	assert.True(t, errors.Is(cfg, io.EOF))
	assert.False(t, IsResourceUnavailable(cfg))

	res := fmt.Errorf("trial 2 presenting_a: %w", &ResourceUnavailableError{Resource: "a.wav", Err: io.ErrUnexpectedEOF})
	assert.True(t, IsResourceUnavailable(res))
	assert.True(t, errors.Is(res, io.ErrUnexpectedEOF))
	assert.Contains(t, res.Error(), "resource unavailable: a.wav")

	link := &TriggerLinkError{Op: "write", Label: "S1", Err: io.ErrClosedPipe}
	assert.Equal(t, `trigger link error: write "S1": io: read/write on closed pipe`, link.Error())
	assert.True(t, errors.Is(link, io.ErrClosedPipe))
}

func TestStimulusAndTiming(t *testing.T) {
	s := StimulusSpec{DurationMs: 250}
	assert.Equal(t, 250*time.Millisecond, s.Duration())
	assert.False(t, s.HasLabel())
	s.Label = "S1"
	assert.True(t, s.HasLabel())

	tc := TimingConfig{InnerDelayMs: 100, OuterDelayMs: 1500}
	assert.Equal(t, 100*time.Millisecond, tc.InnerDelay())
	assert.Equal(t, 1500*time.Millisecond, tc.OuterDelay())
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateAborted.Terminal())
	for _, s := range append([]State{StateIdle, StatePaused}, Stages...) {
		assert.False(t, s.Terminal(), s)
	}
	assert.Equal(t, []State{StatePresentingA, StateInnerGap, StatePresentingB, StateOuterGap}, Stages)
}

func TestResponded(t *testing.T) {
	assert.False(t, ResponseRecord{}.Responded())
	key := "space"
	assert.True(t, ResponseRecord{PressedKey: &key}.Responded())
}
