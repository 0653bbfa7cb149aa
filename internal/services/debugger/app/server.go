// Package server wires the debugger runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	grpcmeta "github.com/JohnPiwinski/antlrworks/internal/platform/grpc/metadata"
	debuggerservice "github.com/JohnPiwinski/antlrworks/internal/services/debugger/api/grpc/debugger"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/recorder"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/session"
	debuggersqlite "github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage/sqlite"
)

// Config configures the debugger server.
type Config struct {
	// DBPath locates the trace database; data/traces.db when empty.
	DBPath  string
	Session session.Config
}

// Server hosts the debugger gRPC API, the debug session and trace storage.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	session    *session.Service
	store      *debuggersqlite.Store
}

// New creates a configured debugger server listening on the provided port.
func New(port int, cfg Config) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port), cfg)
}

// NewWithAddr creates a configured debugger server for the provided address.
func NewWithAddr(addr string, cfg Config) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join("data", "traces.db")
	}
	store, err := openTraceStore(dbPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(debuggerservice.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	sessionService, err := session.New(store, cfg.Session, session.WithObserver(healthObserver{health: healthServer}))
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create debug session: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcmeta.UnaryServerInterceptor(nil)),
	)
	debuggerservice.RegisterDebuggerServer(grpcServer, debuggerservice.NewService(sessionService))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		session:    sessionService,
		store:      store,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a debugger server until context cancellation.
func Run(ctx context.Context, port int, cfg Config) error {
	server, err := New(port, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("debugger server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Close releases debugger server resources. The session is stopped before the
// store closes so a pending auto-save can finish.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.session != nil {
		s.session.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close trace store: %v", err)
		}
	}
}

// healthObserver reports the debugger service as SERVING while a session is
// alive.
type healthObserver struct {
	recorder.NopObserver
	health *health.Server
}

func (o healthObserver) OnStatusChanged(status recorder.Status) {
	serving := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if status.Alive() {
		serving = grpc_health_v1.HealthCheckResponse_SERVING
	}
	o.health.SetServingStatus(debuggerservice.ServiceName, serving)
}

func openTraceStore(path string) (*debuggersqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := debuggersqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace sqlite store: %w", err)
	}
	return store, nil
}
