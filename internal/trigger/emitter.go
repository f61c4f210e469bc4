// Package trigger sends onset labels to external recording hardware.
// Sends are best effort: they never block the caller and never fail it.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spboyer/stimseq/internal/models"
	"go.bug.st/serial.v1"
)

//go:generate go tool mockgen -package trigger -destination mock_emitter.go . Emitter

// Emitter sends a label at stimulus onset.
type Emitter interface {
	// Emit queues label for sending and returns immediately.
	Emit(label string)

	Close() error
}

// Observer is told about every failed send.
type Observer func(err *models.TriggerLinkError)

// NopEmitter discards labels.
type NopEmitter struct{}

func (NopEmitter) Emit(string) {}

func (NopEmitter) Close() error { return nil }

// ReadyLine is the control line asserted around each label.
// serial.Port implements it through its RTS pin.
type ReadyLine interface {
	SetRTS(rts bool) error
	Close() error
}

const (
	// closeTimeout bounds how long Close waits for queued sends.
	closeTimeout = 100 * time.Millisecond

	// queueSize is the number of labels that may wait behind a slow send.
	queueSize = 32

	defaultWriteTimeout = 100 * time.Millisecond
)

// LinkEmitter implements the ready/send/release protocol: raise the ready
// line, wait readyDelay, write prefix+label+"\n", lower the line. Labels
// are sent in Emit order by a single worker; when the queue is full the
// label is dropped and reported to the observer.
type LinkEmitter struct {
	ready        ReadyLine
	data         io.Writer
	closers      []io.Closer
	readyDelay   time.Duration
	writeTimeout time.Duration
	prefix       string
	observer     Observer

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}

	abandoned atomic.Bool
}

// Config describes the trigger link.
type Config struct {
	// TCPAddress receives label bytes. When empty, labels are written to
	// the serial port instead.
	TCPAddress string

	// SerialPort carries the ready line (RTS). Optional when TCPAddress is set.
	SerialPort string
	BaudRate   int

	ReadyDelay  time.Duration
	Prefix      string
	DialTimeout time.Duration

	// WriteTimeout bounds each label write on the TCP connection. Serial
	// writes are not bounded by the port driver.
	WriteTimeout time.Duration

	Observer Observer
}

// Dial opens the serial port and TCP connection described by cfg.
func Dial(ctx context.Context, cfg Config) (*LinkEmitter, error) {
	if cfg.TCPAddress == "" && cfg.SerialPort == "" {
		return nil, &models.ConfigError{Source: "trigger", Problems: []string{"either tcp_address or serial_port must be set"}}
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = time.Second
	}

	var (
		ready   ReadyLine
		data    io.Writer
		closers []io.Closer
	)
	if cfg.SerialPort != "" {
		port, err := serial.Open(cfg.SerialPort, &serial.Mode{BaudRate: cfg.BaudRate})
		if err != nil {
			return nil, &models.TriggerLinkError{Op: "dial", Err: fmt.Errorf("opening %s: %w", cfg.SerialPort, err)}
		}
		ready, data = port, port
		closers = append(closers, port)
	}
	if cfg.TCPAddress != "" {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", cfg.TCPAddress)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, &models.TriggerLinkError{Op: "dial", Err: err}
		}
		data = conn
		closers = append(closers, conn)
	}

	e := NewLinkEmitter(ready, data, cfg.ReadyDelay, cfg.Prefix, cfg.Observer)
	e.closers = closers
	if cfg.WriteTimeout > 0 {
		e.writeTimeout = cfg.WriteTimeout
	}
	return e, nil
}

// NewLinkEmitter builds an emitter over already open channels and starts
// its send worker. ready may be nil when the receiver needs no ready signal.
func NewLinkEmitter(ready ReadyLine, data io.Writer, readyDelay time.Duration, prefix string, observer Observer) *LinkEmitter {
	if observer == nil {
		observer = LogObserver
	}
	e := &LinkEmitter{
		ready:        ready,
		data:         data,
		readyDelay:   readyDelay,
		writeTimeout: defaultWriteTimeout,
		prefix:       prefix,
		observer:     observer,
		queue:        make(chan string, queueSize),
		done:         make(chan struct{}),
	}
	go e.work()
	return e
}

// LogObserver logs failed sends as warnings.
func LogObserver(err *models.TriggerLinkError) {
	slog.Warn("trigger send failed", "op", err.Op, "label", err.Label, "error", err.Err)
}

// Emit implements Emitter.
func (e *LinkEmitter) Emit(label string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.observer(&models.TriggerLinkError{Op: "queue", Label: label, Err: errors.New("emitter closed")})
		return
	}
	select {
	case e.queue <- label:
	default:
		e.observer(&models.TriggerLinkError{Op: "queue", Label: label, Err: errors.New("send queue full")})
	}
}

func (e *LinkEmitter) work() {
	defer close(e.done)
	for label := range e.queue {
		if e.abandoned.Load() {
			continue
		}
		if err := e.send(label); err != nil && !e.abandoned.Load() {
			e.observer(err)
		}
	}
}

func (e *LinkEmitter) send(label string) *models.TriggerLinkError {
	if e.ready != nil {
		if err := e.ready.SetRTS(true); err != nil {
			return &models.TriggerLinkError{Op: "ready", Label: label, Err: err}
		}
		defer func() {
			if err := e.ready.SetRTS(false); err != nil {
				slog.Debug("lowering ready line failed", "error", err)
			}
		}()
		if e.readyDelay > 0 {
			time.Sleep(e.readyDelay)
		}
	}

	if d, ok := e.data.(interface{ SetWriteDeadline(time.Time) error }); ok && e.writeTimeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(e.writeTimeout)); err != nil {
			return &models.TriggerLinkError{Op: "write", Label: label, Err: err}
		}
	}
	if _, err := io.WriteString(e.data, e.prefix+label+"\n"); err != nil {
		return &models.TriggerLinkError{Op: "write", Label: label, Err: err}
	}
	return nil
}

// Close waits briefly for queued sends, then closes the link. Labels still
// queued after the wait are discarded without being reported.
func (e *LinkEmitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	select {
	case <-e.done:
	case <-time.After(closeTimeout):
		e.abandoned.Store(true)
		slog.Warn("timed out waiting for trigger sends")
	}

	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
