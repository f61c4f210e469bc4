package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spboyer/stimseq/internal/models"
)

//go:generate go tool mockgen -package audio -destination mock_player.go . Player

// Player plays a stimulus clip, truncated to maxDuration, and blocks until
// output completes.
type Player interface {
	Play(ctx context.Context, resource string, maxDuration time.Duration) error
}

// FilePlaceholder is replaced by the truncated clip path in player commands.
const FilePlaceholder = "{file}"

// CommandPlayer hands each truncated clip to an external program such as
// aplay, afplay or ffplay and waits for it to exit.
type CommandPlayer struct {
	command []string
	tempDir string
	runner  func(ctx context.Context, name string, args ...string) error
}

// CommandPlayerOption configures a CommandPlayer.
type CommandPlayerOption func(*CommandPlayer)

// WithTempDir sets where truncated clips are written. Defaults to os.TempDir().
func WithTempDir(dir string) CommandPlayerOption {
	return func(p *CommandPlayer) {
		p.tempDir = dir
	}
}

// NewCommandPlayer creates a player for the given command line. If no
// argument is FilePlaceholder the clip path is appended.
func NewCommandPlayer(command []string, opts ...CommandPlayerOption) (*CommandPlayer, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, &models.ConfigError{Source: "audio.player", Problems: []string{"player command is empty"}}
	}
	p := &CommandPlayer{
		command: command,
		runner:  runCommand,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Play truncates resource into a temporary file owned by this call, plays
// it, and removes the file on every return path.
func (p *CommandPlayer) Play(ctx context.Context, resource string, maxDuration time.Duration) error {
	path, clip, cleanup, err := materialize(p.tempDir, resource, maxDuration)
	if err != nil {
		return err
	}
	defer cleanup()

	if clip.Frames == 0 {
		return nil
	}

	args := make([]string, 0, len(p.command))
	substituted := false
	for _, a := range p.command[1:] {
		if strings.Contains(a, FilePlaceholder) {
			a = strings.ReplaceAll(a, FilePlaceholder, path)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, path)
	}

	if err := p.runner(ctx, p.command[0], args...); err != nil {
		return fmt.Errorf("playing %s: %w", resource, err)
	}
	return nil
}

// DryRunPlayer truncates clips exactly like CommandPlayer but waits out the
// clip length instead of producing sound. Useful without an audio device.
type DryRunPlayer struct {
	TempDir string
}

// Play implements Player.
func (p DryRunPlayer) Play(ctx context.Context, resource string, maxDuration time.Duration) error {
	_, clip, cleanup, err := materialize(p.TempDir, resource, maxDuration)
	if err != nil {
		return err
	}
	defer cleanup()

	select {
	case <-time.After(clip.Duration()):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// materialize writes the truncated copy of resource to a fresh temp file.
// The returned cleanup removes it; on error nothing is left behind.
func materialize(dir, resource string, maxDuration time.Duration) (string, Clip, func(), error) {
	if _, err := os.Stat(resource); err != nil {
		return "", Clip{}, nil, &models.ResourceUnavailableError{Resource: resource, Err: err}
	}

	f, err := os.CreateTemp(dir, "stim-*.wav")
	if err != nil {
		return "", Clip{}, nil, fmt.Errorf("creating temp clip: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temp clip", "path", path, "error", err)
		}
	}

	clip, err := Truncate(resource, maxDuration, f)
	closeErr := f.Close()
	if err != nil {
		cleanup()
		return "", Clip{}, nil, &models.ResourceUnavailableError{Resource: resource, Err: err}
	}
	if closeErr != nil {
		cleanup()
		return "", Clip{}, nil, fmt.Errorf("closing temp clip: %w", closeErr)
	}
	return path, clip, cleanup, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	//nolint:gosec // player command comes from the operator's config
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// SweepTemp removes leftover clip files in dir, for example after a crash.
// It returns the number of files removed.
func SweepTemp(dir string) (int, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, "stim-*.wav"))
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
