package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	debuggerapi "github.com/JohnPiwinski/antlrworks/internal/services/debugger/api/grpc/debugger"
)

// SessionResourceURI addresses the readable debug session snapshot.
const SessionResourceURI = "debugger://session"

// DebuggerClient is the debugger API used by MCP handlers.
type DebuggerClient interface {
	Run(ctx context.Context, command string, args map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error)
	Snapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListTraces(ctx context.Context, limit int, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// EmptyInput is the input of tools without arguments.
type EmptyInput struct{}

// LaunchInput represents the MCP tool input for launching a debug session.
type LaunchInput struct {
	Addr string `json:"addr,omitempty" jsonschema:"recognizer host:port (defaults to the server configuration)"`
}

// StepInput represents the MCP tool input for stepping.
type StepInput struct {
	BreakOn string `json:"break_on,omitempty" jsonschema:"comma separated event kinds to break on for this step (defaults to the session breakpoints)"`
}

// ToggleBreakKindInput represents the MCP tool input for toggling a kind breakpoint.
type ToggleBreakKindInput struct {
	Selector string `json:"selector" jsonschema:"event kind (location, consume, lt, enter_rule, exit_rule, begin_backtrack, end_backtrack, exception, terminate) or all"`
}

// ToggleSpanBreakpointInput represents the MCP tool input for toggling a token breakpoint.
type ToggleSpanBreakpointInput struct {
	TokenIndex int `json:"token_index" jsonschema:"token index to break on"`
}

// SetConditionInput represents the MCP tool input for the breakpoint condition.
type SetConditionInput struct {
	Condition string `json:"condition,omitempty" jsonschema:"Lua expression over kind, rule, grammar, token_index, text, line, pos and backtrack; empty clears it"`
}

// CommandResult is the outcome of a session command.
type CommandResult struct {
	Changed  bool     `json:"changed" jsonschema:"false when the command had nothing to do"`
	Snapshot Snapshot `json:"snapshot" jsonschema:"session state after the command"`
}

// ToggleResult is the outcome of a breakpoint toggle.
type ToggleResult struct {
	Enabled  bool     `json:"enabled" jsonschema:"whether the breakpoint is now set"`
	Snapshot Snapshot `json:"snapshot" jsonschema:"session state after the toggle"`
}

// SnapshotTool defines the MCP tool schema for reading the session state.
func SnapshotTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_snapshot",
		Description: "Returns the debug session state: status, position, parser context, reconstructed input and breakpoints",
	}
}

// SnapshotHandler reads the current session state.
func SnapshotHandler(client DebuggerClient) mcp.ToolHandlerFor[EmptyInput, Snapshot] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, Snapshot, error) {
		var out Snapshot
		meta, err := call(ctx, grpcCallTimeout, func(callCtx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
			return client.Snapshot(callCtx, opts...)
		}, &out)
		if err != nil {
			return nil, Snapshot{}, fmt.Errorf("debugger snapshot failed: %w", err)
		}
		return CallToolResultWithMetadata(meta), out, nil
	}
}

// LaunchTool defines the MCP tool schema for launching a debug session.
func LaunchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_launch",
		Description: "Connects to an instrumented recognizer and starts recording its trace",
	}
}

// LaunchHandler launches a debug session.
func LaunchHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[LaunchInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandLaunch, grpcLongCallTimeout, notify, func(in LaunchInput) map[string]any {
		return map[string]any{"addr": in.Addr}
	})
}

// StopTool defines the MCP tool schema for stopping the session.
func StopTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_stop",
		Description: "Stops the debug session and disconnects the recognizer",
	}
}

// StopHandler stops the debug session.
func StopHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[EmptyInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandStop, grpcCallTimeout, notify, noArgs)
}

// StepForwardTool defines the MCP tool schema for stepping forward.
func StepForwardTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_step_forward",
		Description: "Plays events forward until one matches the breakpoints",
	}
}

// StepForwardHandler steps forward.
func StepForwardHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[StepInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandStepForward, grpcCallTimeout, notify, stepArgs)
}

// StepBackwardTool defines the MCP tool schema for stepping backward.
func StepBackwardTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_step_backward",
		Description: "Undoes events until the current one matches the breakpoints",
	}
}

// StepBackwardHandler steps backward.
func StepBackwardHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[StepInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandStepBackward, grpcCallTimeout, notify, stepArgs)
}

// StepOverTool defines the MCP tool schema for stepping over a rule.
func StepOverTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_step_over",
		Description: "Steps past the rule entered by the current event",
	}
}

// StepOverHandler steps over the current rule.
func StepOverHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[EmptyInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandStepOver, grpcCallTimeout, notify, noArgs)
}

// FastForwardTool defines the MCP tool schema for fast forwarding.
func FastForwardTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_fast_forward",
		Description: "Plays to the end of the recorded trace without breaking",
	}
}

// FastForwardHandler fast forwards the session.
func FastForwardHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[EmptyInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandFastForward, grpcCallTimeout, notify, noArgs)
}

// GoToStartTool defines the MCP tool schema for rewinding to the start.
func GoToStartTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_go_to_start",
		Description: "Rewinds to the beginning of the trace",
	}
}

// GoToStartHandler rewinds the session.
func GoToStartHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[EmptyInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandGoToStart, grpcCallTimeout, notify, noArgs)
}

// GoToEndTool defines the MCP tool schema for playing to the end.
func GoToEndTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_go_to_end",
		Description: "Plays to the end of the recorded trace",
	}
}

// GoToEndHandler plays to the end of the trace.
func GoToEndHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[EmptyInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandGoToEnd, grpcCallTimeout, notify, noArgs)
}

// ToggleBreakKindTool defines the MCP tool schema for toggling a kind breakpoint.
func ToggleBreakKindTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_toggle_break_kind",
		Description: "Toggles breaking on an event kind, or on every kind with all",
	}
}

// ToggleBreakKindHandler toggles a kind breakpoint.
func ToggleBreakKindHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ToggleBreakKindInput, ToggleResult] {
	return toggleHandler(client, debuggerapi.CommandToggleBreakKind, notify, func(in ToggleBreakKindInput) map[string]any {
		return map[string]any{"selector": in.Selector}
	})
}

// ToggleSpanBreakpointTool defines the MCP tool schema for toggling a token breakpoint.
func ToggleSpanBreakpointTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_toggle_span_breakpoint",
		Description: "Toggles breaking on events that touch a token",
	}
}

// ToggleSpanBreakpointHandler toggles a token breakpoint.
func ToggleSpanBreakpointHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ToggleSpanBreakpointInput, ToggleResult] {
	return toggleHandler(client, debuggerapi.CommandToggleSpanBreakpoint, notify, func(in ToggleSpanBreakpointInput) map[string]any {
		return map[string]any{"token_index": in.TokenIndex}
	})
}

// SetConditionTool defines the MCP tool schema for the breakpoint condition.
func SetConditionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "debugger_set_condition",
		Description: "Sets or clears the Lua condition a breakpoint must satisfy",
	}
}

// SetConditionHandler sets the breakpoint condition.
func SetConditionHandler(client DebuggerClient, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[SetConditionInput, CommandResult] {
	return commandHandler(client, debuggerapi.CommandSetCondition, grpcCallTimeout, notify, func(in SetConditionInput) map[string]any {
		return map[string]any{"condition": in.Condition}
	})
}

// SessionResource defines the readable session snapshot resource.
func SessionResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "debugger_session",
		Title:       "Debug Session",
		Description: "Readable debug session snapshot",
		MIMEType:    "application/json",
		URI:         SessionResourceURI,
	}
}

// SessionResourceHandler returns the readable session snapshot.
func SessionResourceHandler(client DebuggerClient) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if client == nil {
			return nil, fmt.Errorf("debugger client is not configured")
		}
		uri := SessionResourceURI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		if uri != SessionResourceURI {
			return nil, fmt.Errorf("unknown resource %s", uri)
		}

		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()
		out, err := client.Snapshot(runCtx)
		if err != nil {
			return nil, fmt.Errorf("debugger snapshot failed: %w", err)
		}
		var snapshot Snapshot
		if err := decodeStruct(out, &snapshot); err != nil {
			return nil, err
		}
		data, err := jsonMarshalIndent(snapshot)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

func noArgs(EmptyInput) map[string]any { return nil }

func stepArgs(in StepInput) map[string]any {
	if in.BreakOn == "" {
		return nil
	}
	return map[string]any{"break_on": in.BreakOn}
}

func commandHandler[I any](client DebuggerClient, command string, timeout time.Duration, notify ResourceUpdateNotifier, args func(I) map[string]any) mcp.ToolHandlerFor[I, CommandResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input I) (*mcp.CallToolResult, CommandResult, error) {
		var out CommandResult
		meta, err := runCommand(ctx, client, command, args(input), timeout, &out)
		if err != nil {
			return nil, CommandResult{}, err
		}
		if out.Changed {
			NotifyResourceUpdates(ctx, notify, SessionResourceURI)
		}
		return CallToolResultWithMetadata(meta), out, nil
	}
}

func toggleHandler[I any](client DebuggerClient, command string, notify ResourceUpdateNotifier, args func(I) map[string]any) mcp.ToolHandlerFor[I, ToggleResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input I) (*mcp.CallToolResult, ToggleResult, error) {
		var out ToggleResult
		meta, err := runCommand(ctx, client, command, args(input), grpcCallTimeout, &out)
		if err != nil {
			return nil, ToggleResult{}, err
		}
		NotifyResourceUpdates(ctx, notify, SessionResourceURI)
		return CallToolResultWithMetadata(meta), out, nil
	}
}

func runCommand(ctx context.Context, client DebuggerClient, command string, args map[string]any, timeout time.Duration, out any) (ToolCallMetadata, error) {
	if client == nil {
		return ToolCallMetadata{}, fmt.Errorf("debugger client is not configured")
	}
	meta, err := call(ctx, timeout, func(callCtx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
		return client.Run(callCtx, command, args, opts...)
	}, out)
	if err != nil {
		return ToolCallMetadata{}, fmt.Errorf("debugger %s failed: %w", command, err)
	}
	return meta, nil
}

// call runs one gRPC call with correlation metadata and decodes its response.
func call(ctx context.Context, timeout time.Duration, invoke func(context.Context, ...grpc.CallOption) (*structpb.Struct, error), out any) (ToolCallMetadata, error) {
	invocationID, err := NewInvocationID()
	if err != nil {
		return ToolCallMetadata{}, fmt.Errorf("generate invocation id: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx, callMeta, err := NewOutgoingContext(runCtx, invocationID)
	if err != nil {
		return ToolCallMetadata{}, fmt.Errorf("create request metadata: %w", err)
	}

	var header metadata.MD
	response, err := invoke(callCtx, grpc.Header(&header))
	if err != nil {
		return ToolCallMetadata{}, err
	}
	if err := decodeStruct(response, out); err != nil {
		return ToolCallMetadata{}, err
	}
	return MergeResponseMetadata(callMeta, header), nil
}
