package models

import "time"

// StimulusSpec is one half of a trial: an image shown while a clip plays.
type StimulusSpec struct {
	ImageRef   string `json:"image_ref"`
	AudioRef   string `json:"audio_ref"`
	DurationMs int    `json:"duration_ms"`

	// Label is the trigger code sent at onset. Empty means no trigger.
	Label string `json:"label,omitempty"`
}

// Duration returns DurationMs as a time.Duration.
func (s StimulusSpec) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// HasLabel reports whether the stimulus carries a trigger label.
func (s StimulusSpec) HasLabel() bool {
	return s.Label != ""
}

// TrialSpec is one row of the catalog.
type TrialSpec struct {
	// Index is the zero-based position of the trial in the catalog.
	Index int          `json:"index"`
	A     StimulusSpec `json:"a"`
	B     StimulusSpec `json:"b"`
}

// TimingConfig holds the gaps between stimuli and between trials.
type TimingConfig struct {
	InnerDelayMs           int `json:"inner_delay_ms" mapstructure:"inner_delay"`
	OuterDelayMs           int `json:"outer_delay_ms" mapstructure:"outer_delay"`
	OuterDelayJitterCeilMs int `json:"outer_delay_jitter_ceil_ms" mapstructure:"outer_delay_ceil"`
}

// InnerDelay returns the gap between stimulus A and stimulus B.
func (t TimingConfig) InnerDelay() time.Duration {
	return time.Duration(t.InnerDelayMs) * time.Millisecond
}

// OuterDelay returns the fixed part of the gap between trials.
func (t TimingConfig) OuterDelay() time.Duration {
	return time.Duration(t.OuterDelayMs) * time.Millisecond
}
