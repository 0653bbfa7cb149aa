// Package service hosts the MCP server that drives the debugger control API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	platformgrpc "github.com/JohnPiwinski/antlrworks/internal/platform/grpc"
	"github.com/JohnPiwinski/antlrworks/internal/platform/timeouts"
	debuggerapi "github.com/JohnPiwinski/antlrworks/internal/services/debugger/api/grpc/debugger"
	"github.com/JohnPiwinski/antlrworks/internal/services/mcp/domain"
)

const (
	serverName = "antlrworks-debugger MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves streamable HTTP for remote clients.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	GRPCAddr  string
	Transport TransportKind
	// HTTPAddr defaults to localhost:8093 for the HTTP transport.
	HTTPAddr string
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	conn      *grpc.ClientConn
}

type toolRegistration func(*mcp.Server)

func tool[I, O any](t *mcp.Tool, handler mcp.ToolHandlerFor[I, O]) toolRegistration {
	return func(server *mcp.Server) {
		mcp.AddTool(server, t, handler)
	}
}

// newServer registers the debugger tools and resources over conn.
func newServer(conn *grpc.ClientConn) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		SubscribeHandler:   resourceSubscribeHandler,
		UnsubscribeHandler: resourceUnsubscribeHandler,
	})
	registerTools(mcpServer, debuggerapi.NewClient(conn))
	return &Server{mcpServer: mcpServer, conn: conn}
}

func registerTools(mcpServer *mcp.Server, client domain.DebuggerClient) {
	notify := func(ctx context.Context, uri string) {
		if strings.TrimSpace(uri) == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		if err := mcpServer.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
			log.Printf("mcp resource updated notify failed: uri=%s err=%v", uri, err)
		}
	}

	for _, register := range []toolRegistration{
		tool(domain.SnapshotTool(), domain.SnapshotHandler(client)),
		tool(domain.LaunchTool(), domain.LaunchHandler(client, notify)),
		tool(domain.StopTool(), domain.StopHandler(client, notify)),
		tool(domain.StepForwardTool(), domain.StepForwardHandler(client, notify)),
		tool(domain.StepBackwardTool(), domain.StepBackwardHandler(client, notify)),
		tool(domain.StepOverTool(), domain.StepOverHandler(client, notify)),
		tool(domain.FastForwardTool(), domain.FastForwardHandler(client, notify)),
		tool(domain.GoToStartTool(), domain.GoToStartHandler(client, notify)),
		tool(domain.GoToEndTool(), domain.GoToEndHandler(client, notify)),
		tool(domain.ToggleBreakKindTool(), domain.ToggleBreakKindHandler(client, notify)),
		tool(domain.ToggleSpanBreakpointTool(), domain.ToggleSpanBreakpointHandler(client, notify)),
		tool(domain.SetConditionTool(), domain.SetConditionHandler(client, notify)),
		tool(domain.TraceListTool(), domain.TraceListHandler(client)),
		tool(domain.TraceLoadTool(), domain.TraceLoadHandler(client, notify)),
		tool(domain.TraceSaveTool(), domain.TraceSaveHandler(client)),
		tool(domain.TraceDeleteTool(), domain.TraceDeleteHandler(client)),
	} {
		register(mcpServer)
	}
	mcpServer.AddResource(domain.SessionResource(), domain.SessionResourceHandler(client))
}

// resourceSubscribeHandler accepts resource subscriptions with a valid URI.
func resourceSubscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}

// resourceUnsubscribeHandler accepts resource unsubscriptions with a valid URI.
func resourceUnsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}

// Run dials the debugger and serves MCP until the context ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	switch cfg.Transport {
	case TransportStdio:
		return runWithTransport(ctx, cfg.GRPCAddr, &mcp.StdioTransport{})
	case TransportHTTP:
		return runWithHTTPTransport(ctx, cfg)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

func runWithHTTPTransport(ctx context.Context, cfg Config) error {
	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = "localhost:8093"
	}

	conn, err := dialDebuggerGRPC(ctx, cfg.GRPCAddr)
	if err != nil {
		return err
	}
	server := newServer(conn)
	defer server.Close()

	healthCtx, healthCancel := context.WithCancel(ctx)
	defer healthCancel()
	go server.monitorHealth(healthCtx)

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server.mcpServer
	}, nil)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: timeouts.GRPCRequest,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("mcp http listening at %s", httpAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown MCP http: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve MCP http: %w", err)
	}
}

// monitorHealth logs while the debugger API is unreachable.
func (s *Server) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.conn == nil {
				continue
			}
			healthClient := grpc_health_v1.NewHealthClient(s.conn)
			callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
			response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: ""})
			cancel()
			if err != nil {
				log.Printf("debugger health check failed: %v", err)
			} else if response.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
				log.Printf("debugger health check status: %s", response.GetStatus().String())
			}
		}
	}
}

// Close releases the gRPC connection held by the server.
func (s *Server) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	s.conn = nil
	return nil
}

// serveWithTransport runs the MCP server on transport and closes the gRPC
// connection on every exit path.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close gRPC connection: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close gRPC connection: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func runWithTransport(ctx context.Context, grpcAddr string, transport mcp.Transport) error {
	conn, err := dialDebuggerGRPC(ctx, grpcAddr)
	if err != nil {
		return err
	}
	return newServer(conn).serveWithTransport(ctx, transport)
}

func dialDebuggerGRPC(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("debugger address is required")
	}
	logf := func(format string, args ...any) {
		log.Printf("debugger %s", fmt.Sprintf(format, args...))
	}
	conn, err := platformgrpc.DialWithHealth(ctx, addr, platformgrpc.DialOptions{
		Timeout: timeouts.GRPCDial,
		Logf:    logf,
	}, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		var dialErr *platformgrpc.DialError
		if errors.As(err, &dialErr) {
			if dialErr.Stage == platformgrpc.DialStageConnect {
				return nil, fmt.Errorf("connect to debugger at %s: %w", addr, dialErr.Err)
			}
			return nil, dialErr.Err
		}
		return nil, err
	}
	return conn, nil
}
