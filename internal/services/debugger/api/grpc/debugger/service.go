package debugger

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/JohnPiwinski/antlrworks/internal/platform/errors"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/session"
)

// Command names accepted by Command.
const (
	CommandLaunch               = "launch"
	CommandStop                 = "stop"
	CommandStepForward          = "step_forward"
	CommandStepBackward         = "step_backward"
	CommandStepOver             = "step_over"
	CommandFastForward          = "fast_forward"
	CommandGoToStart            = "go_to_start"
	CommandGoToEnd              = "go_to_end"
	CommandToggleBreakKind      = "toggle_break_kind"
	CommandToggleSpanBreakpoint = "toggle_span_breakpoint"
	CommandSetCondition         = "set_condition"
	CommandSaveTrace            = "save_trace"
	CommandLoadTrace            = "load_trace"
	CommandDeleteTrace          = "delete_trace"
)

// LocaleHeader selects the language of error messages.
const LocaleHeader = "x-antlrworks-locale"

// Service exposes the debug session through the debugger gRPC API.
type Service struct {
	session *session.Service
}

// NewService creates a debugger API backed by a session service.
func NewService(svc *session.Service) *Service {
	return &Service{session: svc}
}

// Command runs one session command. The request carries the command name in
// "command" and its arguments as sibling fields.
func (s *Service) Command(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "command request is required")
	}
	if s == nil || s.session == nil {
		return nil, status.Error(codes.Internal, "debug session is not configured")
	}
	fields, err := s.dispatch(ctx, in)
	if err != nil {
		return nil, apperrors.HandleError(err, localeFromContext(ctx))
	}
	return encode(fields)
}

// Snapshot returns the current session state.
func (s *Service) Snapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.session == nil {
		return nil, status.Error(codes.Internal, "debug session is not configured")
	}
	return encode(snapshotFields(s.session.Snapshot()))
}

// ListTraces lists stored traces, newest first. An optional "limit" bounds the
// page.
func (s *Service) ListTraces(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.session == nil {
		return nil, status.Error(codes.Internal, "debug session is not configured")
	}
	limit, _ := intField(in, "limit")
	summaries, err := s.session.ListTraces(ctx, limit)
	if err != nil {
		return nil, apperrors.HandleError(err, localeFromContext(ctx))
	}
	traces := make([]any, 0, len(summaries))
	for _, summary := range summaries {
		traces = append(traces, traceFields(summary))
	}
	return encode(map[string]any{"traces": traces})
}

func (s *Service) dispatch(ctx context.Context, in *structpb.Struct) (map[string]any, error) {
	name := strings.ToLower(stringField(in, "command"))
	switch name {
	case "":
		return nil, apperrors.WithMetadata(apperrors.CodeArgumentInvalid, "command is required", map[string]string{"Field": "command"})
	case CommandLaunch:
		snapshot, err := s.session.Launch(ctx, stringField(in, "addr"))
		if err != nil {
			return nil, err
		}
		return resultFields(session.Result{Changed: true, Snapshot: snapshot}), nil
	case CommandStop:
		return result(s.session.Stop(ctx))
	case CommandStepForward:
		return result(s.session.StepForward(ctx, stringField(in, "break_on")))
	case CommandStepBackward:
		return result(s.session.StepBackward(ctx, stringField(in, "break_on")))
	case CommandStepOver:
		return result(s.session.StepOver(ctx))
	case CommandFastForward:
		return result(s.session.FastForward(ctx))
	case CommandGoToStart:
		return result(s.session.GoToStart(ctx))
	case CommandGoToEnd:
		return result(s.session.GoToEnd(ctx))
	case CommandToggleBreakKind:
		enabled, err := s.session.ToggleBreakKind(ctx, stringField(in, "selector"))
		if err != nil {
			return nil, err
		}
		return toggleFields(enabled, s.session.Snapshot()), nil
	case CommandToggleSpanBreakpoint:
		tokenIndex, ok := intField(in, "token_index")
		if !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeArgumentInvalid, "token index is required", map[string]string{"Field": "token_index"})
		}
		enabled, err := s.session.ToggleSpanBreakpoint(ctx, tokenIndex)
		if err != nil {
			return nil, err
		}
		return toggleFields(enabled, s.session.Snapshot()), nil
	case CommandSetCondition:
		if err := s.session.SetCondition(ctx, stringField(in, "condition")); err != nil {
			return nil, err
		}
		return resultFields(session.Result{Changed: true, Snapshot: s.session.Snapshot()}), nil
	case CommandSaveTrace:
		summary, err := s.session.SaveTrace(ctx, stringField(in, "name"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"trace": traceFields(summary)}, nil
	case CommandLoadTrace:
		snapshot, err := s.session.LoadTrace(ctx, stringField(in, "trace_id"))
		if err != nil {
			return nil, err
		}
		return resultFields(session.Result{Changed: true, Snapshot: snapshot}), nil
	case CommandDeleteTrace:
		traceID := stringField(in, "trace_id")
		if err := s.session.DeleteTrace(ctx, traceID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": traceID}, nil
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeCommandUnknown, "unknown command "+name, map[string]string{"Command": name})
	}
}

func result(r session.Result, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return resultFields(r), nil
}

func resultFields(r session.Result) map[string]any {
	return map[string]any{
		"changed":  r.Changed,
		"snapshot": snapshotFields(r.Snapshot),
	}
}

func toggleFields(enabled bool, snapshot session.Snapshot) map[string]any {
	return map[string]any{
		"enabled":  enabled,
		"snapshot": snapshotFields(snapshot),
	}
}

func encode(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func localeFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return apperrors.DefaultLocale
	}
	if values := md.Get(LocaleHeader); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		return strings.TrimSpace(values[0])
	}
	return apperrors.DefaultLocale
}

var _ DebuggerServer = (*Service)(nil)
