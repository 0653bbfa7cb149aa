package breakpoint

import (
	"reflect"
	"testing"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event/eventtest"
)

func TestNewMaskDefaultsToConsume(t *testing.T) {
	mask := NewMask()
	if got := mask.Kinds(); !reflect.DeepEqual(got, []event.Kind{event.KindConsumeToken}) {
		t.Fatalf("kinds = %v, want [consume]", got)
	}
	if mask.All() {
		t.Fatal("default mask should not select all")
	}
	if !mask.ShouldBreak(eventtest.Consume(0, "a")) {
		t.Fatal("expected break on consume")
	}
	if mask.ShouldBreak(eventtest.Location(1, 0)) {
		t.Fatal("unexpected break on location")
	}
}

func TestToggleLastKindEnablesAll(t *testing.T) {
	mask := NewMask(event.KindConsumeToken)
	if mask.Toggle(event.KindConsumeToken) {
		t.Fatal("toggle should report consume cleared")
	}
	if !mask.All() {
		t.Fatal("expected ALL after clearing the last kind")
	}
	for _, kind := range event.Kinds {
		if !mask.ShouldBreak(event.Event{Kind: kind}) {
			t.Fatalf("expected break on %v", kind)
		}
	}
}

func TestToggleAllCannotLeaveMaskEmpty(t *testing.T) {
	mask := NewAllMask()
	if !mask.ToggleAll() {
		t.Fatal("ALL must stay on with no kinds selected")
	}

	mask.Toggle(event.KindLookahead)
	if mask.ToggleAll() {
		t.Fatal("ALL should turn off once a kind is selected")
	}
	if mask.ShouldBreak(eventtest.Consume(0, "a")) {
		t.Fatal("unexpected break on consume with only LT selected")
	}
	if !mask.ShouldBreak(eventtest.LT(0, "a")) {
		t.Fatal("expected break on LT")
	}
}

func TestSpanBreakpoint(t *testing.T) {
	mask := NewMask(event.KindRecognitionException)
	if !mask.ToggleSpan(3) {
		t.Fatal("expected span breakpoint to be set")
	}
	if !mask.ShouldBreak(eventtest.LT(3, "x")) {
		t.Fatal("expected break on lookahead of token 3")
	}
	if !mask.ShouldBreak(eventtest.Consume(3, "x")) {
		t.Fatal("expected break on consume of token 3")
	}
	if mask.ShouldBreak(eventtest.Consume(4, "y")) {
		t.Fatal("unexpected break on token 4")
	}
	if mask.ToggleSpan(3) {
		t.Fatal("expected span breakpoint to be cleared")
	}
	if mask.HasSpan(3) {
		t.Fatal("span 3 should be cleared")
	}
	if mask.ToggleSpan(-1) {
		t.Fatal("invalid token index must not be set")
	}
}

func TestParseMask(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{input: "", want: []string{"consume"}},
		{input: "all", want: []string{"all"}},
		{input: "location, lt ,exception", want: []string{"location", "lt", "exception"}},
		{input: "ALL,consume", want: []string{"all", "consume"}},
	}
	for _, tc := range tests {
		mask, err := ParseMask(tc.input)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.input, err)
		}
		if got := mask.Selectors(); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("parse %q = %v, want %v", tc.input, got, tc.want)
		}
	}
	if _, err := ParseMask("consume,decision"); err == nil {
		t.Fatal("expected error for unknown selector")
	}
}

func TestToggleSelector(t *testing.T) {
	mask := NewMask()
	on, err := mask.ToggleSelector("location")
	if err != nil {
		t.Fatalf("toggle location: %v", err)
	}
	if !on {
		t.Fatal("location should be on")
	}
	if _, err := mask.ToggleSelector("bogus"); err == nil {
		t.Fatal("expected error for unknown selector")
	}
	if got := mask.String(); got != "location,consume" {
		t.Fatalf("mask = %q, want %q", got, "location,consume")
	}
}

func TestWithSelectorsKeepsSpansAndCondition(t *testing.T) {
	condition, err := NewCondition(`text ~= "skip"`)
	if err != nil {
		t.Fatalf("new condition: %v", err)
	}
	mask := NewMask(event.KindConsumeToken)
	mask.ToggleSpan(3)
	mask.SetCondition(condition)

	override, err := mask.WithSelectors("exit_rule")
	if err != nil {
		t.Fatalf("with selectors: %v", err)
	}
	if got := override.Kinds(); !reflect.DeepEqual(got, []event.Kind{event.KindExitRule}) {
		t.Fatalf("kinds = %v, want [exit_rule]", got)
	}
	if !override.ShouldBreak(eventtest.Exit("prog")) {
		t.Fatal("expected break on exit")
	}
	if override.ShouldBreak(eventtest.Consume(1, "a")) {
		t.Fatal("consume without a span breakpoint should not break")
	}
	if !override.ShouldBreak(eventtest.Consume(3, "c")) {
		t.Fatal("expected break on span breakpoint 3")
	}
	if override.ShouldBreak(eventtest.Consume(3, "skip")) {
		t.Fatal("condition should still filter span breakpoints")
	}

	override.ToggleSpan(4)
	if mask.HasSpan(4) {
		t.Fatal("override spans must not leak into the session mask")
	}
	if _, err := mask.WithSelectors("bogus"); err == nil {
		t.Fatal("expected error for unknown selector")
	}
}
