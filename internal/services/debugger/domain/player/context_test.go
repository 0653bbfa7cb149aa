package player

import (
	"reflect"
	"testing"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event/eventtest"
)

func TestComputeEmpty(t *testing.T) {
	ctx := Compute(nil)
	if ctx.Rule() != "" || ctx.Backtracking() || ctx.Located {
		t.Fatalf("context = %+v, want zero", ctx)
	}
}

func TestComputeTracksRuleStack(t *testing.T) {
	ctx := Compute(eventtest.Sequence(
		eventtest.Enter("prog"),
		eventtest.Enter("stat"),
		eventtest.Enter("expr"),
		eventtest.Exit("expr"),
		eventtest.Location(3, 7),
	))
	if got, want := ctx.Rules, []string{"prog", "stat"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("rules = %v, want %v", got, want)
	}
	if ctx.Rule() != "stat" {
		t.Fatalf("rule = %q, want %q", ctx.Rule(), "stat")
	}
	if ctx.Grammar != "T.g" {
		t.Fatalf("grammar = %q, want %q", ctx.Grammar, "T.g")
	}
	if !ctx.Located || ctx.Line != 3 || ctx.CharInLine != 7 {
		t.Fatalf("location = %d:%d (%t), want 3:7", ctx.Line, ctx.CharInLine, ctx.Located)
	}
}

func TestComputeTracksBacktrackDepth(t *testing.T) {
	events := eventtest.Sequence(
		eventtest.BeginBacktrack(1),
		eventtest.BeginBacktrack(2),
		eventtest.EndBacktrack(2, false),
	)
	if ctx := Compute(events); ctx.Backtrack != 1 || !ctx.Backtracking() {
		t.Fatalf("backtrack = %d, want 1", ctx.Backtrack)
	}
	if ctx := Compute(events[:2]); ctx.Backtrack != 2 {
		t.Fatalf("backtrack = %d, want 2", ctx.Backtrack)
	}
}

func TestComputeIgnoresUnbalancedExits(t *testing.T) {
	ctx := Compute(eventtest.Sequence(
		eventtest.Exit("r"),
		eventtest.EndBacktrack(1, true),
		eventtest.Exception("MismatchedTokenException", 1, 2),
	))
	if len(ctx.Rules) != 0 || ctx.Backtrack != 0 {
		t.Fatalf("context = %+v, want empty stack", ctx)
	}
	if ctx.Exception != "MismatchedTokenException" {
		t.Fatalf("exception = %q", ctx.Exception)
	}
}
