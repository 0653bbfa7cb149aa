package debugger

import (
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/inputtrace"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/player"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/recorder"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/session"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage"
)

// snapshotFields renders a session snapshot as Struct-compatible values.
func snapshotFields(s session.Snapshot) map[string]any {
	return map[string]any{
		"status":      s.Status.String(),
		"description": s.Description,
		"stopped_on":  s.StoppedOn.Name(),
		"position":    s.Position,
		"length":      s.Length,
		"terminated":  s.Terminated,
		"offline":     s.Offline,
		"grammar":     s.Grammar,
		"recognizer":  s.Recognizer,
		"trace_id":    s.TraceID,
		"context":     contextFields(s.Context),
		"input":       inputFields(s.Input, s.Runs),
		"controls":    controlsFields(s.Controls),
		"breakpoints": map[string]any{
			"kinds":     stringList(s.Breaks),
			"spans":     intList(s.BreakSpans),
			"condition": s.Condition,
		},
	}
}

func contextFields(ctx player.Context) map[string]any {
	return map[string]any{
		"grammar":      ctx.Grammar,
		"rule":         ctx.Rule(),
		"rules":        stringList(ctx.Rules),
		"backtrack":    ctx.Backtrack,
		"located":      ctx.Located,
		"line":         ctx.Line,
		"char_in_line": ctx.CharInLine,
		"exception":    ctx.Exception,
	}
}

func inputFields(input inputtrace.Snapshot, runs []inputtrace.Run) map[string]any {
	spans := make([]any, 0, len(input.Spans))
	for _, span := range input.Spans {
		spans = append(spans, map[string]any{
			"token_index":  span.TokenIndex,
			"start":        span.Start,
			"end":          span.End,
			"attribute":    span.Attribute.String(),
			"line":         span.Line,
			"char_in_line": span.CharInLine,
		})
	}
	encodedRuns := make([]any, 0, len(runs))
	for _, run := range runs {
		encodedRuns = append(encodedRuns, map[string]any{
			"start":     run.Start,
			"end":       run.End,
			"attribute": run.Attribute.String(),
		})
	}
	return map[string]any{
		"text":              input.Text,
		"cursor":            input.Cursor,
		"persistent":        input.Persistent,
		"persistent_length": input.PersistentLength,
		"line":              input.Line,
		"char_in_line":      input.CharInLine,
		"spans":             spans,
		"runs":              encodedRuns,
	}
}

func controlsFields(c recorder.Controls) map[string]any {
	return map[string]any{
		"stop":         c.Stop,
		"backward":     c.Backward,
		"forward":      c.Forward,
		"step_over":    c.StepOver,
		"fast_forward": c.FastForward,
		"go_to_start":  c.GoToStart,
		"go_to_end":    c.GoToEnd,
	}
}

func traceFields(summary storage.TraceSummary) map[string]any {
	return map[string]any{
		"id":          summary.ID,
		"name":        summary.Name,
		"grammar":     summary.Grammar,
		"event_count": summary.EventCount,
		"created_at":  summary.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func stringList(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}

func intList(values []int) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}

func stringField(in *structpb.Struct, name string) string {
	return strings.TrimSpace(in.GetFields()[name].GetStringValue())
}

// intField reads a whole number. ok is false when the field is missing or not
// an integral number.
func intField(in *structpb.Struct, name string) (value int, ok bool) {
	field, present := in.GetFields()[name]
	if !present {
		return 0, false
	}
	number, isNumber := field.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, false
	}
	f := number.NumberValue
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
