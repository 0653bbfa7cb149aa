package inputtrace

import (
	"errors"
	"reflect"
	"testing"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event/eventtest"
)

func applyAll(m *Model, events []event.Event) {
	for _, evt := range events {
		m.ApplyForward(evt)
	}
}

func TestApplyForwardRetagsKnownSpan(t *testing.T) {
	m := New()
	applyAll(m, eventtest.Sequence(
		eventtest.Location(1, 0),
		eventtest.Consume(0, "a"),
		eventtest.LT(1, "b"),
		eventtest.Consume(1, "b"),
	))

	if m.Text() != "ab" {
		t.Fatalf("text = %q, want %q", m.Text(), "ab")
	}
	for index, want := range map[int]Span{
		0: {TokenIndex: 0, Start: 0, End: 1, Line: 1, Attribute: Consumed, Position: 1},
		1: {TokenIndex: 1, Start: 1, End: 2, Line: 1, Attribute: Consumed, Position: 2},
	} {
		got, ok := m.Span(index)
		if !ok {
			t.Fatalf("span %d missing", index)
		}
		if got != want {
			t.Fatalf("span %d = %+v, want %+v", index, got, want)
		}
	}
	if m.Cursor() != 2 {
		t.Fatalf("cursor = %d, want 2", m.Cursor())
	}
}

func TestApplyForwardTagsConsumeKinds(t *testing.T) {
	m := New()
	applyAll(m, eventtest.Sequence(
		eventtest.Consume(0, "a"),
		eventtest.ConsumeAs(event.ConsumeDead, 1, "bc"),
		eventtest.ConsumeAs(event.ConsumeHidden, 2, " "),
	))

	for offset, want := range []Attribute{Consumed, ConsumedDead, ConsumedDead, ConsumedHidden} {
		got, ok := m.Attribute(offset)
		if !ok || got != want {
			t.Fatalf("attribute at %d = %v, %t, want %v", offset, got, ok, want)
		}
	}
	if span, _ := m.Span(1); span.Attribute != ConsumedDead {
		t.Fatalf("span 1 attribute = %v, want %v", span.Attribute, ConsumedDead)
	}

	// Consuming the token for real after the backtrack clears the dead state.
	m.ApplyForward(eventtest.Consume(1, "bc"))
	if span, _ := m.Span(1); span.Attribute != Consumed {
		t.Fatalf("span 1 attribute = %v, want %v", span.Attribute, Consumed)
	}
	if m.Text() != "abc " {
		t.Fatalf("text = %q, want %q", m.Text(), "abc ")
	}
}

func TestApplyForwardUpdatesSpanLocationOnEveryTouch(t *testing.T) {
	m := New()
	applyAll(m, eventtest.Sequence(
		eventtest.Location(3, 4),
		eventtest.LT(0, "x"),
		eventtest.Location(7, 2),
		eventtest.Consume(0, "x"),
	))
	span, _ := m.Span(0)
	if span.Line != 7 || span.CharInLine != 2 {
		t.Fatalf("span location = %d:%d, want 7:2", span.Line, span.CharInLine)
	}
}

func TestApplyForwardReportsChanges(t *testing.T) {
	m := New()
	located := m.ApplyForward(eventtest.Location(2, 5))
	if !located.Located || located.Line != 2 || located.CharInLine != 5 {
		t.Fatalf("location change = %+v", located)
	}
	touched := m.ApplyForward(eventtest.ConsumeAs(event.ConsumeHidden, 0, " "))
	if !touched.Touched || touched.Attribute != ConsumedHidden || touched.TokenIndex != 0 {
		t.Fatalf("consume change = %+v", touched)
	}
	if none := m.ApplyForward(eventtest.Enter("r")); none.Touched || none.Located {
		t.Fatalf("rule change = %+v, want empty", none)
	}
}

func TestRewindToRetagsInPersistenceMode(t *testing.T) {
	m := New()
	applyAll(m, eventtest.Sequence(eventtest.Consume(0, "ab"), eventtest.Consume(1, "cd")))

	m.RewindTo(2)

	if m.Text() != "abcd" {
		t.Fatalf("text = %q, want %q", m.Text(), "abcd")
	}
	wantRuns := []Run{{Start: 0, End: 2, Attribute: Consumed}, {Start: 2, End: 4, Attribute: NonConsumed}}
	if got := m.Runs(); !reflect.DeepEqual(got, wantRuns) {
		t.Fatalf("runs = %+v, want %+v", got, wantRuns)
	}
	if m.Cursor() != 2 {
		t.Fatalf("cursor = %d, want 2", m.Cursor())
	}

	m.ApplyForward(event.Event{Position: 2, Kind: event.KindConsumeToken, Token: event.Token{Index: 1, Text: "cd"}})
	if m.Text() != "abcd" {
		t.Fatalf("text after replay = %q, want %q", m.Text(), "abcd")
	}
	if attr, _ := m.Attribute(3); attr != Consumed {
		t.Fatalf("attribute = %v, want %v", attr, Consumed)
	}
}

func TestInvalidTokenIndexDisablesPersistence(t *testing.T) {
	m := New()
	events := eventtest.Sequence(
		eventtest.Consume(0, "a"),
		eventtest.Consume(event.InvalidTokenIndex, "?"),
		eventtest.Consume(1, "b"),
	)
	m.ApplyForward(events[0])
	change := m.ApplyForward(events[1])
	if !errors.Is(change.Degraded, ErrNonContiguousToken) {
		t.Fatalf("degraded = %v, want %v", change.Degraded, ErrNonContiguousToken)
	}
	if m.Persistent() {
		t.Fatal("expected persistence to be disabled")
	}
	if at, broken := m.BrokenAt(); !broken || at != 1 {
		t.Fatalf("broken at = %d (%t), want 1", at, broken)
	}

	m.ApplyForward(events[2])
	if m.Text() != "a?b" {
		t.Fatalf("text = %q, want %q", m.Text(), "a?b")
	}

	m.RewindTo(1)
	if m.Text() != "a" {
		t.Fatalf("text after rewind = %q, want %q", m.Text(), "a")
	}
	m.ApplyForward(eventtest.Sequence(eventtest.Consume(0, "a"))[0])
	if m.Text() != "aa" {
		t.Fatalf("text after replay = %q, want re-inserted %q", m.Text(), "aa")
	}
}

func TestNonContiguousTokenDisablesPersistence(t *testing.T) {
	m := New()
	change := m.ApplyForward(eventtest.Consume(2, "z"))
	if change.Degraded == nil {
		t.Fatal("expected degradation for token 2 without token 1")
	}
	if m.Persistent() {
		t.Fatal("expected persistence to be disabled")
	}
	if len(m.Spans()) != 0 {
		t.Fatalf("spans = %d, want 0", len(m.Spans()))
	}
}

func TestResetAllKeepsDegradation(t *testing.T) {
	m := New()
	m.ApplyForward(eventtest.Consume(event.InvalidTokenIndex, "x"))
	m.ResetAll()
	if m.Persistent() {
		t.Fatal("ResetAll must not re-enable persistence")
	}
	if m.Len() != 0 || m.Cursor() != 0 {
		t.Fatalf("len/cursor = %d/%d, want 0/0", m.Len(), m.Cursor())
	}

	m.Reset()
	if !m.Persistent() {
		t.Fatal("Reset should re-enable persistence")
	}
}

func TestResetAllMatchesInitialSnapshot(t *testing.T) {
	initial := New().Snapshot()
	m := New()
	applyAll(m, eventtest.Sequence(eventtest.Location(1, 1), eventtest.Consume(0, "abc")))
	m.ResetAll()
	if got := m.Snapshot(); !reflect.DeepEqual(got, initial) {
		t.Fatalf("snapshot = %+v, want %+v", got, initial)
	}
}

func TestMarkRestore(t *testing.T) {
	m := New()
	applyAll(m, eventtest.Sequence(eventtest.Location(4, 2), eventtest.Consume(0, "ab")))
	mark := m.Mark()
	if mark != (Mark{Cursor: 2, Length: 2, Line: 4, CharInLine: 2}) {
		t.Fatalf("mark = %+v", mark)
	}
	m.SetLocation(9, 9)
	m.RewindTo(0)
	m.Restore(mark)
	if line, char := m.Location(); line != 4 || char != 2 {
		t.Fatalf("location = %d:%d, want 4:2", line, char)
	}
	if m.Cursor() != 2 {
		t.Fatalf("cursor = %d, want 2", m.Cursor())
	}
}

func TestSpanAt(t *testing.T) {
	m := New()
	applyAll(m, eventtest.Sequence(eventtest.Consume(0, "ab"), eventtest.LT(1, "cde")))
	span, ok := m.SpanAt(3)
	if !ok || span.TokenIndex != 1 || span.Attribute != Lookahead {
		t.Fatalf("span at 3 = %+v (%t)", span, ok)
	}
	if _, ok := m.SpanAt(5); ok {
		t.Fatal("expected no span past the end")
	}
}
