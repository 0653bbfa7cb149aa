package debugger

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the debugger service over a gRPC connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a debugger client.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Command runs a raw command request.
func (c *Client) Command(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if c == nil || c.conn == nil {
		return nil, errors.New("debugger client is not configured")
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, CommandMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot fetches the current session state.
func (c *Client) Snapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if c == nil || c.conn == nil {
		return nil, errors.New("debugger client is not configured")
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, SnapshotMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTraces lists stored traces. A zero limit uses the server default.
func (c *Client) ListTraces(ctx context.Context, limit int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if c == nil || c.conn == nil {
		return nil, errors.New("debugger client is not configured")
	}
	fields := map[string]any{}
	if limit > 0 {
		fields["limit"] = limit
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode list traces request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ListTracesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Run sends the named command with its arguments.
func (c *Client) Run(ctx context.Context, command string, args map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := make(map[string]any, len(args)+1)
	for key, value := range args {
		fields[key] = value
	}
	fields["command"] = command
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", command, err)
	}
	return c.Command(ctx, in, opts...)
}
