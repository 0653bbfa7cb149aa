package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	debuggerapi "github.com/JohnPiwinski/antlrworks/internal/services/debugger/api/grpc/debugger"
)

// TraceListInput represents the MCP tool input for listing stored traces.
type TraceListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of traces to return (defaults to the server page size)"`
}

// TraceListResult lists stored traces, newest first.
type TraceListResult struct {
	Traces []Trace `json:"traces" jsonschema:"stored traces"`
}

// TraceLoadInput represents the MCP tool input for replaying a stored trace.
type TraceLoadInput struct {
	TraceID string `json:"trace_id" jsonschema:"identifier of the trace to replay"`
}

// TraceSaveInput represents the MCP tool input for storing the current trace.
type TraceSaveInput struct {
	Name string `json:"name,omitempty" jsonschema:"trace name (defaults to the grammar file)"`
}

// TraceSaveResult is the stored trace.
type TraceSaveResult struct {
	Trace Trace `json:"trace" jsonschema:"stored trace summary"`
}

// TraceDeleteInput represents the MCP tool input for deleting a stored trace.
type TraceDeleteInput struct {
	TraceID string `json:"trace_id" jsonschema:"identifier of the trace to delete"`
}

// TraceDeleteResult confirms a deletion.
type TraceDeleteResult struct {
	Deleted string `json:"deleted" jsonschema:"identifier of the deleted trace"`
}

// TraceListTool defines the MCP tool schema for listing stored traces.
func TraceListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "trace_list",
		Description: "Lists stored debugger traces, newest first",
	}
}

// TraceListHandler lists stored traces.
func TraceListHandler(client DebuggerClient) mcp.ToolHandlerFor[TraceListInput, TraceListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TraceListInput) (*mcp.CallToolResult, TraceListResult, error) {
		if client == nil {
			return nil, TraceListResult{}, fmt.Errorf("debugger client is not configured")
		}
		if input.Limit < 0 {
			return nil, TraceListResult{}, fmt.Errorf("limit must not be negative")
		}
		var out TraceListResult
		meta, err := call(ctx, grpcCallTimeout, func(callCtx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
			return client.ListTraces(callCtx, input.Limit, opts...)
		}, &out)
		if err != nil {
			return nil, TraceListResult{}, fmt.Errorf("trace list failed: %w", err)
		}
		if out.Traces == nil {
			out.Traces = []Trace{}
		}
		return CallToolResultWithMetadata(meta), out, nil
	}
}

// TraceLoadTool defines the MCP tool schema for replaying a stored trace.
func TraceLoadTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "trace_load",
		Description: "Replays a stored trace offline, positioned before its first event",
	}
}

// TraceLoadHandler replays a stored trace.
func TraceLoadHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[TraceLoadInput, CommandResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TraceLoadInput) (*mcp.CallToolResult, CommandResult, error) {
		if input.TraceID == "" {
			return nil, CommandResult{}, fmt.Errorf("trace_id is required")
		}
		var out CommandResult
		meta, err := runCommand(ctx, client, debuggerapi.CommandLoadTrace, map[string]any{"trace_id": input.TraceID}, grpcCallTimeout, &out)
		if err != nil {
			return nil, CommandResult{}, err
		}
		NotifyResourceUpdates(ctx, notify, SessionResourceURI)
		return CallToolResultWithMetadata(meta), out, nil
	}
}

// TraceSaveTool defines the MCP tool schema for storing the current trace.
func TraceSaveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "trace_save",
		Description: "Stores the events recorded by the current session",
	}
}

// TraceSaveHandler stores the current trace.
func TraceSaveHandler(client DebuggerClient) mcp.ToolHandlerFor[TraceSaveInput, TraceSaveResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TraceSaveInput) (*mcp.CallToolResult, TraceSaveResult, error) {
		var out TraceSaveResult
		meta, err := runCommand(ctx, client, debuggerapi.CommandSaveTrace, map[string]any{"name": input.Name}, grpcCallTimeout, &out)
		if err != nil {
			return nil, TraceSaveResult{}, err
		}
		return CallToolResultWithMetadata(meta), out, nil
	}
}

// TraceDeleteTool defines the MCP tool schema for deleting a stored trace.
func TraceDeleteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "trace_delete",
		Description: "Deletes a stored trace",
	}
}

// TraceDeleteHandler deletes a stored trace.
func TraceDeleteHandler(client DebuggerClient) mcp.ToolHandlerFor[TraceDeleteInput, TraceDeleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TraceDeleteInput) (*mcp.CallToolResult, TraceDeleteResult, error) {
		if input.TraceID == "" {
			return nil, TraceDeleteResult{}, fmt.Errorf("trace_id is required")
		}
		var out TraceDeleteResult
		meta, err := runCommand(ctx, client, debuggerapi.CommandDeleteTrace, map[string]any{"trace_id": input.TraceID}, grpcCallTimeout, &out)
		if err != nil {
			return nil, TraceDeleteResult{}, err
		}
		return CallToolResultWithMetadata(meta), out, nil
	}
}

func jsonMarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
