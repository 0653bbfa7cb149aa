// Package transport connects to an instrumented recognizer and pumps its
// debug events into a sink.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/JohnPiwinski/antlrworks/internal/platform/timeouts"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/protocol"
)

// EventSink receives a live trace. The recorder implements it.
type EventSink interface {
	Append(evt event.Event) error
	Terminated()
	Disconnected(err error)
}

// DefaultConnectTimeout bounds how long Dial retries a recognizer that is
// still starting.
const DefaultConnectTimeout = timeouts.RecognizerConnect

// Options tune Dial.
type Options struct {
	// ConnectTimeout bounds the whole retry loop, handshake included.
	ConnectTimeout time.Duration
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
	// Logf reports retries; log.Printf when nil.
	Logf func(format string, args ...any)
}

// Session is an established connection to a recognizer.
type Session struct {
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	handshake protocol.Handshake

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to addr and performs the handshake, retrying with exponential
// backoff until the connect timeout elapses.
func Dial(ctx context.Context, addr string, opts Options) (*Session, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("recognizer address is required")
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}

	policy := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		policy.InitialInterval = opts.InitialInterval
	}
	policy.MaxInterval = time.Second

	var dialer net.Dialer
	session, err := backoff.Retry(ctx, func() (*Session, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		session, err := open(conn, timeout)
		if err != nil {
			_ = conn.Close()
			if errors.Is(err, protocol.ErrHandshake) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return session, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logf("connect recognizer %s: %v (retry in %s)", addr, err, next)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect recognizer %s: %w", addr, err)
	}
	return session, nil
}

func open(conn net.Conn, timeout time.Duration) (*Session, error) {
	s := &Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		closed: make(chan struct{}),
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	versionLine, err := s.readLine()
	if err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	grammarLine, err := s.readLine()
	if err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	handshake, err := protocol.ParseHandshake(versionLine, grammarLine)
	if err != nil {
		return nil, err
	}
	if err := s.ack(); err != nil {
		return nil, fmt.Errorf("ack handshake: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	s.handshake = handshake
	return s, nil
}

// Handshake returns the session header sent by the recognizer.
func (s *Session) Handshake() protocol.Handshake {
	return s.handshake
}

// Run reads events until the recognizer closes the connection, ctx ends or
// Close is called. A close after a terminate event is reported as
// sink.Terminated, any other end of stream as sink.Disconnected. Run returns
// nil after a clean end and after Close.
func (s *Session) Run(ctx context.Context, sink EventSink) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	decoder := protocol.NewDecoder()
	terminated := false
	for {
		line, err := s.readLine()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			_ = s.Close()
			if terminated && errors.Is(err, io.EOF) {
				sink.Terminated()
				return nil
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			sink.Disconnected(err)
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		evt, ok, err := decoder.Decode(line)
		if err != nil {
			_ = s.Close()
			sink.Disconnected(err)
			return err
		}
		if ok {
			if err := sink.Append(evt); err != nil {
				_ = s.Close()
				return fmt.Errorf("record event %d: %w", evt.Position, err)
			}
			if evt.Kind == event.KindTerminate {
				terminated = true
			}
		}
		if err := s.ack(); err != nil && !terminated {
			if s.isClosed() {
				return nil
			}
			_ = s.Close()
			sink.Disconnected(err)
			return err
		}
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Session) ack() error {
	if _, err := s.writer.WriteString(protocol.Ack + "\n"); err != nil {
		return err
	}
	return s.writer.Flush()
}
