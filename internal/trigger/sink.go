package trigger

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Received is one label line seen by a Sink.
type Received struct {
	Peer  string
	Label string
	At    time.Time
}

// Sink listens for trigger connections and reports each received line.
// It stands in for recording hardware when bench-testing a setup.
type Sink struct {
	listener net.Listener
	handle   func(Received)
	wg       sync.WaitGroup
}

// Listen opens a TCP listener on addr.
func Listen(addr string, handle func(Received)) (*Sink, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Sink{listener: l, handle: handle}, nil
}

// Addr returns the listening address.
func (s *Sink) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled.
func (s *Sink) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.listener.Close()
	})
	defer stop()

	var conns sync.Map
	defer func() {
		conns.Range(func(k, _ any) bool {
			_ = k.(net.Conn).Close()
			return true
		})
		s.wg.Wait()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		slog.Debug("trigger client connected", "peer", conn.RemoteAddr())
		conns.Store(conn, struct{}{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conns.Delete(conn)
			s.read(conn)
		}()
	}
}

func (s *Sink) read(conn net.Conn) {
	defer conn.Close() //nolint:errcheck

	peer := conn.RemoteAddr().String()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		s.handle(Received{
			Peer:  peer,
			Label: strings.TrimRight(sc.Text(), "\r"),
			At:    time.Now(),
		})
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("trigger client read failed", "peer", peer, "error", err)
	}
}

// Close stops the listener.
func (s *Sink) Close() error {
	return s.listener.Close()
}
