// Package session runs debug sessions: it connects the recorder to a live
// recognizer, replays stored traces and persists finished ones.
package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/JohnPiwinski/antlrworks/internal/platform/errors"
	"github.com/JohnPiwinski/antlrworks/internal/platform/timeouts"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/breakpoint"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/recorder"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/protocol"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/transport"
)

const tracerName = "github.com/JohnPiwinski/antlrworks/internal/services/debugger/session"

// Config tunes a Service.
type Config struct {
	// RecognizerAddr is dialed when Launch gets no address.
	RecognizerAddr string
	ConnectTimeout time.Duration
	// BreakOn is the initial breakpoint selector list, e.g. "consume,exception".
	BreakOn string
	// Condition is an optional Lua breakpoint condition.
	Condition string
	// Autosave stores every finished live trace.
	Autosave bool
	Logf     func(format string, args ...any)
}

// Option configures a Service.
type Option func(*Service)

// WithObserver adds an observer of the recorder next to the session's own.
func WithObserver(observer recorder.Observer) Option {
	return func(s *Service) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

// Service owns one recorder and the connection feeding it.
type Service struct {
	cfg       Config
	store     storage.TraceStore
	mask      *breakpoint.Mask
	recorder  *recorder.Recorder
	observers recorder.Observers
	tracer    trace.Tracer
	logf      func(format string, args ...any)

	// live is set while the recorder holds a trace recorded from a recognizer.
	live      atomic.Bool
	autosaved atomic.Bool
	bg        sync.WaitGroup

	mu         sync.Mutex
	conn       *transport.Session
	cancelRun  context.CancelFunc
	runDone    chan struct{}
	grammar    string
	recognizer string
	traceID    string
}

// New creates a stopped session service. store may be nil, in which case
// trace operations report that storage is not configured.
func New(store storage.TraceStore, cfg Config, opts ...Option) (*Service, error) {
	mask, err := breakpoint.ParseMask(cfg.BreakOn)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeBreakSelectorInvalid, "parse break mask", map[string]string{"Selector": cfg.BreakOn}, err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = timeouts.RecognizerConnect
	}
	s := &Service{
		cfg:    cfg,
		store:  store,
		mask:   mask,
		tracer: otel.Tracer(tracerName),
		logf:   cfg.Logf,
	}
	if s.logf == nil {
		s.logf = log.Printf
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if strings.TrimSpace(cfg.Condition) != "" {
		if err := s.installCondition(cfg.Condition); err != nil {
			return nil, err
		}
	}
	s.recorder = recorder.New(
		recorder.WithMask(mask),
		recorder.WithObserver(append(recorder.Observers{sessionObserver{s}}, s.observers...)),
	)
	return s, nil
}

// Recorder exposes the replay engine.
func (s *Service) Recorder() *recorder.Recorder {
	return s.recorder
}

// Launch connects to a recognizer and starts recording its trace. An empty
// addr uses the configured recognizer address.
func (s *Service) Launch(ctx context.Context, addr string) (snapshot Snapshot, err error) {
	ctx, span := s.start(ctx, "session.Launch")
	defer func() { finish(span, err) }()

	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = s.cfg.RecognizerAddr
	}
	if addr == "" {
		return Snapshot{}, apperrors.WithMetadata(apperrors.CodeArgumentInvalid, "recognizer address is required", map[string]string{"Field": "addr"})
	}
	span.SetAttributes(attribute.String("recognizer.addr", addr))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recorder.Status() != recorder.StatusStopped {
		return Snapshot{}, apperrors.New(apperrors.CodeSessionActive, "debug session is active")
	}
	s.stopRunLocked()
	if !s.recorder.Launch() {
		return Snapshot{}, apperrors.New(apperrors.CodeSessionActive, "debug session is active")
	}
	s.live.Store(true)
	s.autosaved.Store(false)
	s.grammar, s.traceID, s.recognizer = "", "", addr
	s.logf("connecting to recognizer at %s", addr)

	conn, err := transport.Dial(ctx, addr, transport.Options{ConnectTimeout: s.cfg.ConnectTimeout, Logf: s.logf})
	if err != nil {
		s.recorder.Disconnected(err)
		code := apperrors.CodeRecognizerUnavailable
		if errors.Is(err, protocol.ErrHandshake) {
			code = apperrors.CodeRecognizerProtocol
		}
		return Snapshot{}, apperrors.WrapWithMetadata(code, "launch session", map[string]string{"Addr": addr}, err)
	}
	// Stop does not wait for s.mu before stopping the recorder.
	if s.recorder.Status() != recorder.StatusLaunching {
		_ = conn.Close()
		s.logf("recognizer %s connected after the session stopped", addr)
		return Snapshot{}, apperrors.WithMetadata(apperrors.CodeLaunchAborted, "session stopped while connecting", map[string]string{"Addr": addr})
	}
	s.conn = conn
	s.grammar = conn.Handshake().Grammar
	s.logf("recognizer %s connected (grammar %q, protocol %s)", addr, s.grammar, conn.Handshake().Version)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancelRun, s.runDone = cancel, done
	go func() {
		defer close(done)
		defer conn.Close()
		if err := conn.Run(runCtx, s.recorder); err != nil {
			s.logf("recognizer %s: %v", addr, err)
		}
	}()
	return s.snapshotLocked(), nil
}

// Stop ends the current session. Stopping a stopped session is a no-op.
func (s *Service) Stop(ctx context.Context) (Result, error) {
	_, span := s.start(ctx, "session.Stop")
	defer finish(span, nil)

	stopped := s.recorder.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRunLocked()
	return Result{Changed: stopped, Snapshot: s.snapshotLocked()}, nil
}

// Close stops any session and waits for background work such as auto-saves.
func (s *Service) Close() {
	s.recorder.Stop()
	s.mu.Lock()
	s.stopRunLocked()
	s.mu.Unlock()
	s.bg.Wait()
}

// stopRunLocked cancels the transport pump and waits for it to exit.
func (s *Service) stopRunLocked() {
	if s.cancelRun == nil {
		return
	}
	s.cancelRun()
	<-s.runDone
	s.cancelRun, s.runDone, s.conn = nil, nil, nil
}

func (s *Service) start(ctx context.Context, name string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.tracer.Start(ctx, name)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
