// Package hooks runs operator-configured shell commands around a session,
// for example to start and stop an external recorder.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spboyer/stimseq/internal/template"
)

// Lifecycle points.
const (
	BeforeSession = "before_session"
	AfterSession  = "after_session"
)

// HookConfig defines a single hook command.
type HookConfig struct {
	Command          string `yaml:"command" json:"command"`
	WorkingDirectory string `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	ExitCodes        []int  `yaml:"exit_codes,omitempty" json:"exit_codes,omitempty"`
	ErrorOnFail      bool   `yaml:"error_on_fail,omitempty" json:"error_on_fail,omitempty"`
}

// HooksConfig holds all lifecycle hooks.
type HooksConfig struct {
	BeforeSession []HookConfig `yaml:"before_session,omitempty" json:"before_session,omitempty"`
	AfterSession  []HookConfig `yaml:"after_session,omitempty" json:"after_session,omitempty"`
}

// Runner executes hook commands at lifecycle points.
type Runner struct {
	Verbose bool

	// Env is appended to the process environment of every hook, e.g.
	// STIMSEQ_PARTICIPANT=p01.
	Env []string

	// Vars, when set, expands {{.Participant}} style fields in commands.
	Vars *template.Context
}

// Execute runs all hooks for a given lifecycle point.
// name identifies the lifecycle point (e.g. "before_session") for logging and error context.
func (r *Runner) Execute(ctx context.Context, name string, hooks []HookConfig) error {
	for i, h := range hooks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hook %s: context canceled: %w", name, err)
		}

		if err := r.runHook(ctx, name, i, h); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runHook(ctx context.Context, name string, index int, h HookConfig) error {
	if strings.TrimSpace(h.Command) == "" {
		return fmt.Errorf("hook %s[%d]: empty command", name, index)
	}

	command := h.Command
	if r.Vars != nil {
		rendered, err := template.Render(command, r.Vars)
		if err != nil {
			return fmt.Errorf("hook %s[%d]: %w", name, index, err)
		}
		command = rendered
	}

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return fmt.Errorf("hook %s[%d]: command is empty after expansion", name, index)
	}
	//nolint:gosec // hook commands come from the operator's .stimseq.yaml
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	if h.WorkingDirectory != "" {
		cmd.Dir = h.WorkingDirectory
	}
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	output, err := cmd.CombinedOutput()

	if r.Verbose && len(output) > 0 {
		fmt.Fprintf(os.Stderr, "[hook:%s] %s\n", name, string(output))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if ok := errors.As(err, &exitErr); ok {
			exitCode := exitErr.ExitCode()

			if !isAcceptableExit(exitCode, h.ExitCodes) {
				if h.ErrorOnFail {
					return fmt.Errorf("hook %s[%d]: command exited with code %d", name, index, exitCode)
				}
				slog.Warn("hook failed, continuing", "hook", name, "index", index, "exit_code", exitCode)
			}
		} else {
			// Non-exit error (e.g. command not found)
			if h.ErrorOnFail {
				return fmt.Errorf("hook %s[%d]: %w", name, index, err)
			}
			slog.Warn("hook failed, continuing", "hook", name, "index", index, "error", err)
		}
		return nil
	}

	// err == nil means exit code 0; verify 0 is acceptable
	if !isAcceptableExit(0, h.ExitCodes) {
		if h.ErrorOnFail {
			return fmt.Errorf("hook %s[%d]: command exited with code 0 but expected %v", name, index, h.ExitCodes)
		}
		slog.Warn("hook exited 0 but other codes expected, continuing", "hook", name, "index", index, "expected", h.ExitCodes)
	}

	return nil
}

// isAcceptableExit checks whether exitCode is in the allowed list.
// An empty allowedCodes list defaults to allowing only exit code 0.
func isAcceptableExit(exitCode int, allowedCodes []int) bool {
	if len(allowedCodes) == 0 {
		return exitCode == 0
	}
	for _, code := range allowedCodes {
		if exitCode == code {
			return true
		}
	}
	return false
}
