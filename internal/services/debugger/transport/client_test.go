package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event/eventtest"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/protocol"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/transport/transporttest"
)

type fakeSink struct {
	mu           sync.Mutex
	events       []event.Event
	terminated   bool
	disconnected error
	appendErr    error
}

func (s *fakeSink) Append(evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *fakeSink) Terminated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
}

func (s *fakeSink) Disconnected(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = err
}

func quiet(string, ...any) {}

func dial(t *testing.T, addr string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := Dial(ctx, addr, Options{ConnectTimeout: 2 * time.Second, InitialInterval: 10 * time.Millisecond, Logf: quiet})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestRunPumpsEventsUntilTerminate(t *testing.T) {
	events := eventtest.Sequence(
		eventtest.Enter("prog"),
		eventtest.Location(1, 0),
		eventtest.Consume(0, "a"),
		eventtest.Exit("prog"),
		eventtest.Terminate(),
	)
	recognizer := transporttest.Serve(t, transporttest.Script{Grammar: "Expr.g", Events: events})
	session := dial(t, recognizer.Addr())

	if session.Handshake().Grammar != "Expr.g" {
		t.Fatalf("grammar = %q, want %q", session.Handshake().Grammar, "Expr.g")
	}

	sink := &fakeSink{}
	if err := session.Run(context.Background(), sink); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sink.terminated || sink.disconnected != nil {
		t.Fatalf("terminated = %t disconnected = %v, want clean termination", sink.terminated, sink.disconnected)
	}
	if len(sink.events) != len(events) {
		t.Fatalf("events = %d, want %d", len(sink.events), len(events))
	}
	for i := range events {
		if sink.events[i].Kind != events[i].Kind || sink.events[i].Position != i {
			t.Fatalf("event %d = %+v, want %+v", i, sink.events[i], events[i])
		}
	}
	<-recognizer.Done()
	if got := recognizer.Acks(); got != len(events)+1 {
		t.Fatalf("acks = %d, want %d", got, len(events)+1)
	}
}

func TestRunAcksIgnoredLines(t *testing.T) {
	recognizer := transporttest.Serve(t, transporttest.Script{Lines: []string{
		"commence",
		"enterDecision\t1",
		"location\t2\t3",
		"exitDecision\t1",
		"terminate",
	}})
	session := dial(t, recognizer.Addr())

	sink := &fakeSink{}
	if err := session.Run(context.Background(), sink); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
	<-recognizer.Done()
	if recognizer.Acks() != 6 {
		t.Fatalf("acks = %d, want 6", recognizer.Acks())
	}
}

func TestRunReportsUnexpectedDisconnect(t *testing.T) {
	recognizer := transporttest.Serve(t, transporttest.Script{Events: eventtest.Sequence(eventtest.Location(1, 0))})
	session := dial(t, recognizer.Addr())

	sink := &fakeSink{}
	err := session.Run(context.Background(), sink)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("run err = %v, want %v", err, io.ErrUnexpectedEOF)
	}
	if sink.terminated || !errors.Is(sink.disconnected, io.ErrUnexpectedEOF) {
		t.Fatalf("terminated = %t disconnected = %v", sink.terminated, sink.disconnected)
	}
}

func TestRunReportsMalformedLine(t *testing.T) {
	recognizer := transporttest.Serve(t, transporttest.Script{Lines: []string{"location\tx\ty"}})
	session := dial(t, recognizer.Addr())

	sink := &fakeSink{}
	if err := session.Run(context.Background(), sink); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("run err = %v, want %v", err, protocol.ErrMalformed)
	}
	if !errors.Is(sink.disconnected, protocol.ErrMalformed) {
		t.Fatalf("disconnected = %v", sink.disconnected)
	}
}

func TestRunStopsWhenSinkRejects(t *testing.T) {
	recognizer := transporttest.Serve(t, transporttest.Script{Events: eventtest.Sequence(eventtest.Location(1, 0)), Hold: true})
	session := dial(t, recognizer.Addr())

	rejected := errors.New("not recording")
	sink := &fakeSink{appendErr: rejected}
	if err := session.Run(context.Background(), sink); !errors.Is(err, rejected) {
		t.Fatalf("run err = %v, want %v", err, rejected)
	}
	if sink.disconnected != nil {
		t.Fatalf("disconnected = %v, want nil", sink.disconnected)
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	recognizer := transporttest.Serve(t, transporttest.Script{Events: eventtest.Sequence(eventtest.Location(1, 0)), Hold: true})
	session := dial(t, recognizer.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	sink := &fakeSink{}
	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(ctx, sink) }()

	deadline := time.Now().Add(5 * time.Second)
	for recognizer.Acks() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the first event")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run err = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if sink.disconnected != nil || sink.terminated {
		t.Fatalf("cancelled run must not report to the sink: %+v", sink)
	}
}

func TestDialRetriesUntilRecognizerListens(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)
		late, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer late.Close()
		conn, err := late.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("ANTLR 2\ngrammar \"T.g\n"))
		buf := make([]byte, 4)
		_, _ = io.ReadFull(conn, buf)
	}()

	session := dial(t, addr)
	if session.Handshake().Version.Major() != 2 {
		t.Fatalf("version = %s", session.Handshake().Version)
	}
}

func TestDialRejectsUnsupportedProtocol(t *testing.T) {
	recognizer := transporttest.Serve(t, transporttest.Script{Version: "3"})
	_, err := Dial(context.Background(), recognizer.Addr(), Options{ConnectTimeout: time.Second, Logf: quiet})
	if !errors.Is(err, protocol.ErrHandshake) {
		t.Fatalf("dial err = %v, want %v", err, protocol.ErrHandshake)
	}
}
