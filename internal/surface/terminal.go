package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spboyer/stimseq/internal/models"
	"golang.org/x/term"
)

const (
	clearScreen  = "\x1b[2J\x1b[H"
	altScreenOn  = "\x1b[?1049h\x1b[?25l"
	altScreenOff = "\x1b[?25h\x1b[?1049l"
)

// TerminalOptions configures a Terminal surface.
type TerminalOptions struct {
	PauseKey string
	AbortKey string

	// Mouse enables xterm mouse reporting so button clicks count as responses.
	Mouse bool

	// Captions prints the stimulus file name under the image.
	Captions bool
}

// Terminal is a full-screen surface on an ANSI terminal. Images are drawn as
// character art; keys and mouse buttons are read in raw mode.
type Terminal struct {
	out  io.Writer
	opts TerminalOptions
	size func() (int, int)
	now  func() time.Time

	latch  *Latch
	events chan models.InputEvent

	restore   func() error
	closeOnce sync.Once
	mu        sync.Mutex // guards out
}

// NewTerminal switches the terminal on in/out into raw mode and starts
// reading input. Close restores it.
func NewTerminal(in, out *os.File, opts TerminalOptions) (*Terminal, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("entering raw mode: %w", err)
	}

	outFd := int(out.Fd())
	size := func() (int, int) {
		w, h, err := term.GetSize(outFd)
		if err != nil || w <= 0 || h <= 0 {
			return 80, 24
		}
		return w, h
	}

	t := newTerminal(in, out, size, opts)
	t.restore = func() error { return term.Restore(fd, state) }
	return t, nil
}

func newTerminal(in io.Reader, out io.Writer, size func() (int, int), opts TerminalOptions) *Terminal {
	if opts.PauseKey == "" {
		opts.PauseKey = "p"
	}
	if opts.AbortKey == "" {
		opts.AbortKey = KeyEscape
	}
	opts.PauseKey = NormalizeKey(opts.PauseKey)
	opts.AbortKey = NormalizeKey(opts.AbortKey)

	t := &Terminal{
		out:    out,
		opts:   opts,
		size:   size,
		now:    time.Now,
		latch:  NewLatch(),
		events: make(chan models.InputEvent, 64),
	}

	setup := altScreenOn + clearScreen
	if opts.Mouse {
		setup += mouseOn
	}
	t.write(setup)

	// The reader outlives Close when in is a terminal; a blocked Read on a
	// tty cannot be interrupted portably.
	go t.readLoop(in)
	return t
}

func (t *Terminal) readLoop(in io.Reader) {
	buf := make([]byte, 256)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			ts := t.now()
			for _, ev := range decodeInput(buf[:n], ts) {
				t.dispatch(ev)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("terminal input closed", "error", err)
			}
			return
		}
	}
}

func (t *Terminal) dispatch(ev models.InputEvent) {
	switch {
	case ev.Kind == models.InputKeyboard && (ev.Key == t.opts.AbortKey || ev.Key == KeyCtrlC):
		t.latch.Signal(ControlAbort)
	case ev.Kind == models.InputKeyboard && ev.Key == t.opts.PauseKey:
		t.latch.Signal(ControlPause)
	default:
		select {
		case t.events <- ev:
		default:
			slog.Debug("input buffer full, dropping event", "key", ev.Key)
		}
	}
}

func (t *Terminal) isControl(key string) bool {
	return key == t.opts.AbortKey || key == t.opts.PauseKey || key == KeyCtrlC
}

// Present implements Surface.
func (t *Terminal) Present(ctx context.Context, req PresentRequest) (Presentation, error) {
	w, h := t.size()
	caption := ""
	if t.opts.Captions {
		caption = req.Stimulus.ImageRef
	}
	rows := h
	if caption != "" {
		rows--
	}
	art, err := renderImage(req.Stimulus.ImageRef, w, rows)
	if err != nil {
		return Presentation{}, &models.ResourceUnavailableError{Resource: req.Stimulus.ImageRef, Err: err}
	}

	t.drainEvents()
	t.write(clearScreen + frame(art, caption, w, h))
	onset := t.now()

	var collected []models.InputEvent
	timer := time.NewTimer(req.Window)
	defer timer.Stop()
	for {
		select {
		case ev := <-t.events:
			if req.Capture {
				collected = append(collected, ev)
			}
		case <-timer.C:
			return Presentation{
				Onset:    onset,
				Response: FirstQualifying(collected, onset, t.isControl),
			}, nil
		case <-ctx.Done():
			return Presentation{Onset: onset}, ctx.Err()
		}
	}
}

func (t *Terminal) drainEvents() {
	for {
		select {
		case <-t.events:
		default:
			return
		}
	}
}

// Blank implements Surface.
func (t *Terminal) Blank(context.Context) error {
	t.write(clearScreen)
	return nil
}

// ShowPaused implements Surface.
func (t *Terminal) ShowPaused(context.Context) error {
	w, h := t.size()
	t.write(clearScreen + pausedScreen(t.opts.PauseKey, w, h))
	return nil
}

// Controls implements Surface.
func (t *Terminal) Controls() Controls {
	return t.latch.Drain()
}

// WaitControl implements Surface.
func (t *Terminal) WaitControl(ctx context.Context) (Control, error) {
	return t.latch.Wait(ctx)
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		teardown := clearScreen + altScreenOff
		if t.opts.Mouse {
			teardown = mouseOff + teardown
		}
		t.write(teardown)
		if t.restore != nil {
			err = t.restore()
		}
	})
	return err
}

func (t *Terminal) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Raw mode disables output post-processing, so bare newlines would not
	// return the cursor to column 0.
	if _, err := io.WriteString(t.out, strings.ReplaceAll(s, "\n", "\r\n")); err != nil {
		slog.Debug("terminal write failed", "error", err)
	}
}
