package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAborted is returned when the participant or operator ends a session early.
var ErrAborted = errors.New("session aborted")

// ConfigError reports a malformed catalog, a bad configuration value, or
// stimulus files that are missing. All problems found are reported together.
type ConfigError struct {
	Source   string
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if e.Source != "" {
		fmt.Fprintf(&b, " [%s]", e.Source)
	}
	switch {
	case len(e.Problems) == 1:
		fmt.Fprintf(&b, ": %s", e.Problems[0])
	case len(e.Problems) > 1:
		fmt.Fprintf(&b, ": %d problems", len(e.Problems))
		for _, p := range e.Problems {
			fmt.Fprintf(&b, "\n  - %s", p)
		}
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError builds a ConfigError from a list of problems.
func NewConfigError(source string, problems ...string) *ConfigError {
	return &ConfigError{Source: source, Problems: problems}
}

// ResourceUnavailableError means a stimulus clip could not be read or
// decoded when it was about to be played.
type ResourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("resource unavailable: %s: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}

// TriggerLinkError describes a failed trigger send. It is reported to
// observers and never returned from a session.
type TriggerLinkError struct {
	Op    string // "dial", "ready", "write", "queue"
	Label string
	Err   error
}

func (e *TriggerLinkError) Error() string {
	return fmt.Sprintf("trigger link error: %s %q: %v", e.Op, e.Label, e.Err)
}

func (e *TriggerLinkError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsResourceUnavailable reports whether err is, or wraps, a ResourceUnavailableError.
func IsResourceUnavailable(err error) bool {
	var re *ResourceUnavailableError
	return errors.As(err, &re)
}
