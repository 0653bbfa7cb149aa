// Package eventlog stores the append-only trace of one debug session.
package eventlog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

var (
	// ErrOutOfRange indicates a read beyond the end of the log.
	ErrOutOfRange = errors.New("trace position out of range")
	// ErrSequenceViolation indicates an append whose position is not the log length.
	ErrSequenceViolation = errors.New("trace position sequence violation")
)

// Log is an ordered, append-only sequence of events indexed by trace position.
//
// Appends and reads are safe for concurrent use. Positions are never reused
// except after TruncateFrom or Reset.
type Log struct {
	mu     sync.RWMutex
	events []event.Event
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// Append adds evt at the end of the log and returns its position.
// evt.Position must equal the current length.
func (l *Log) Append(evt event.Event) (int, error) {
	if !evt.Kind.Valid() {
		return 0, fmt.Errorf("append event: invalid kind %d", int(evt.Kind))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	expected := len(l.events)
	if evt.Position != expected {
		return 0, fmt.Errorf("%w: expected %d got %d", ErrSequenceViolation, expected, evt.Position)
	}
	l.events = append(l.events, evt)
	return expected, nil
}

// Get returns the event at position.
func (l *Log) Get(position int) (event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if position < 0 || position >= len(l.events) {
		return event.Event{}, fmt.Errorf("%w: %d (length %d)", ErrOutOfRange, position, len(l.events))
	}
	return l.events[position], nil
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Slice returns a copy of the events in [from, to).
func (l *Log) Slice(from, to int) ([]event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from < 0 || to > len(l.events) || from > to {
		return nil, fmt.Errorf("%w: [%d, %d) (length %d)", ErrOutOfRange, from, to, len(l.events))
	}
	out := make([]event.Event, to-from)
	copy(out, l.events[from:to])
	return out, nil
}

// TruncateFrom drops every event at or after position.
func (l *Log) TruncateFrom(position int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if position < 0 || position > len(l.events) {
		return fmt.Errorf("%w: %d (length %d)", ErrOutOfRange, position, len(l.events))
	}
	clear(l.events[position:])
	l.events = l.events[:position]
	return nil
}

// Reset empties the log for a new session.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
