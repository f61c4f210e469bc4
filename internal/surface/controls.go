package surface

import (
	"context"
	"sync"
)

// Control is an operator signal observed by the scheduler at stage boundaries.
type Control int

const (
	ControlNone Control = iota
	ControlPause
	ControlAbort
)

func (c Control) String() string {
	switch c {
	case ControlPause:
		return "pause"
	case ControlAbort:
		return "abort"
	default:
		return "none"
	}
}

// Controls is a snapshot of latched control signals.
type Controls struct {
	// Pause is true when the pause key was pressed an odd number of times
	// since the last snapshot.
	Pause bool
	Abort bool
}

// Latch accumulates control signals between stage boundaries. It is safe for
// concurrent use; input readers Signal while the scheduler drains.
type Latch struct {
	mu      sync.Mutex
	pending []Control
	notify  chan struct{}
}

// NewLatch creates an empty latch.
func NewLatch() *Latch {
	return &Latch{notify: make(chan struct{}, 1)}
}

// Signal records a control.
func (l *Latch) Signal(c Control) {
	if c == ControlNone {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, c)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Drain returns the controls recorded since the last Drain and clears them.
func (l *Latch) Drain() Controls {
	l.mu.Lock()
	defer l.mu.Unlock()

	var c Controls
	for _, p := range l.pending {
		switch p {
		case ControlPause:
			c.Pause = !c.Pause
		case ControlAbort:
			c.Abort = true
		}
	}
	l.pending = l.pending[:0]
	return c
}

// Wait blocks until a control is pending and returns the oldest one.
func (l *Latch) Wait(ctx context.Context) (Control, error) {
	for {
		l.mu.Lock()
		if len(l.pending) > 0 {
			c := l.pending[0]
			l.pending = l.pending[1:]
			l.mu.Unlock()
			return c, nil
		}
		l.mu.Unlock()

		select {
		case <-l.notify:
		case <-ctx.Done():
			return ControlNone, ctx.Err()
		}
	}
}
