package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/stimseq/internal/audio/audiotest"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/session"
	"github.com/spboyer/stimseq/internal/surface"
	"github.com/stretchr/testify/require"
)

const catalogHeader = "image1,image2,audio1,audio2,label1,label2,inner_delay,outer_delay,outer_delay_ceil,first_stim,second_stim"

// headlessSurface answers every response window with "space" 42ms after
// onset and can raise abort once a number of stimuli were shown.
type headlessSurface struct {
	mu         sync.Mutex
	presents   int
	abortAfter int
	closed     bool
}

func (s *headlessSurface) Present(_ context.Context, req surface.PresentRequest) (surface.Presentation, error) {
	s.mu.Lock()
	s.presents++
	s.mu.Unlock()

	onset := time.Now()
	p := surface.Presentation{Onset: onset}
	if req.Capture {
		p.Response = &models.InputEvent{Key: "space", Kind: models.InputKeyboard, Timestamp: onset.Add(42 * time.Millisecond)}
	}
	return p, nil
}

func (s *headlessSurface) Blank(context.Context) error      { return nil }
func (s *headlessSurface) ShowPaused(context.Context) error { return nil }

func (s *headlessSurface) Controls() surface.Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return surface.Controls{Abort: s.abortAfter > 0 && s.presents >= s.abortAfter}
}

func (s *headlessSurface) WaitControl(ctx context.Context) (surface.Control, error) {
	<-ctx.Done()
	return surface.ControlNone, ctx.Err()
}

func (s *headlessSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// useHeadless swaps the terminal surface for surf for the rest of the test.
func useHeadless(t *testing.T, surf *headlessSurface) {
	t.Helper()
	origSurface, origInteractive := newSurface, isInteractive
	newSurface = func(surface.TerminalOptions) (surface.Surface, error) { return surf, nil }
	isInteractive = func() bool { return false }
	t.Cleanup(func() {
		newSurface, isInteractive = origSurface, origInteractive
	})
}

// labDir creates a project directory with stimuli under data/ and makes it
// the working directory.
func labDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	images := filepath.Join(dir, "data", "images")
	audios := filepath.Join(dir, "data", "audios")
	require.NoError(t, os.MkdirAll(images, 0o755))
	require.NoError(t, os.MkdirAll(audios, 0o755))

	for _, name := range []string{"a.png", "b.png"} {
		f, err := os.Create(filepath.Join(images, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 3))))
		require.NoError(t, f.Close())
	}
	for _, name := range []string{"a.wav", "b.wav"} {
		audiotest.WriteClip(t, audios, name, 100*time.Millisecond)
	}

	t.Chdir(dir)
	return dir
}

// writeCatalog writes a catalog with n identical short trials.
func writeCatalog(t *testing.T, path string, n int) string {
	t.Helper()
	lines := []string{catalogHeader, "a.png,b.png,a.wav,b.wav,S1,S2,10,10,0,20,30"}
	for i := 1; i < n; i++ {
		lines = append(lines, "a.png,b.png,a.wav,b.wav,S1,S2,,,,,")
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

// runCLI runs the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

// recordingLogger keeps every logged event in memory.
type recordingLogger struct {
	mu     sync.Mutex
	events []session.Event
}

func (l *recordingLogger) Log(ev session.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *recordingLogger) Close() error { return nil }

func (l *recordingLogger) types() []session.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]session.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}
