// Package eventtest builds recognizer event sequences for tests.
package eventtest

import "github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"

// Location builds a location event.
func Location(line, charInLine int) event.Event {
	return event.Event{Kind: event.KindLocation, Line: line, CharInLine: charInLine}
}

// Consume builds a normal token consumption.
func Consume(index int, text string) event.Event {
	return ConsumeAs(event.ConsumeNormal, index, text)
}

// ConsumeAs builds a token consumption of the given kind.
func ConsumeAs(kind event.ConsumeKind, index int, text string) event.Event {
	return event.Event{
		Kind:    event.KindConsumeToken,
		Consume: kind,
		Token:   event.Token{Index: index, Text: text},
	}
}

// LT builds an LT(1) lookahead event.
func LT(index int, text string) event.Event {
	return event.Event{
		Kind:      event.KindLookahead,
		Lookahead: 1,
		Token:     event.Token{Index: index, Text: text},
	}
}

// Enter builds a rule entry event.
func Enter(rule string) event.Event {
	return event.Event{Kind: event.KindEnterRule, Grammar: "T.g", Rule: rule}
}

// Exit builds a rule exit event.
func Exit(rule string) event.Event {
	return event.Event{Kind: event.KindExitRule, Grammar: "T.g", Rule: rule}
}

// BeginBacktrack builds a backtrack start marker.
func BeginBacktrack(level int) event.Event {
	return event.Event{Kind: event.KindBacktrackStart, Backtrack: level}
}

// EndBacktrack builds a backtrack end marker.
func EndBacktrack(level int, successful bool) event.Event {
	return event.Event{Kind: event.KindBacktrackEnd, Backtrack: level, Successful: successful}
}

// Exception builds a recognition exception event.
func Exception(name string, line, charInLine int) event.Event {
	return event.Event{Kind: event.KindRecognitionException, Exception: name, Line: line, CharInLine: charInLine}
}

// Terminate builds a terminate event.
func Terminate() event.Event {
	return event.Event{Kind: event.KindTerminate}
}

// Sequence assigns consecutive trace positions starting at zero.
func Sequence(events ...event.Event) []event.Event {
	out := make([]event.Event, len(events))
	for i, evt := range events {
		evt.Position = i
		out[i] = evt
	}
	return out
}
