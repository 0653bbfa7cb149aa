// Package inputtrace reconstructs the recognizer input buffer from recorded
// token events.
//
// The model appends the text of each newly seen token and tags byte ranges
// with the visual attribute of their latest event. While token indices stay
// contiguous the model runs in persistence mode: a span keeps its offsets
// across rewinds and is only re-tagged when it is revisited. The first invalid
// or non-contiguous token index disables persistence for the rest of the
// session; from then on text is appended and truncated linearly.
package inputtrace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

// ErrNonContiguousToken is reported in a Change when a token disabled
// persistence mode. It is a degradation signal, not a failure.
var ErrNonContiguousToken = errors.New("non-contiguous token index")

// Attribute is the visual state of a byte range of the input buffer.
type Attribute int

const (
	// NonConsumed marks retained text that has not been consumed yet.
	NonConsumed Attribute = iota
	// Consumed marks text of a token consumed on the default channel.
	Consumed
	// ConsumedHidden marks text of a token consumed from a hidden channel.
	ConsumedHidden
	// ConsumedDead marks text of a token consumed while backtracking.
	ConsumedDead
	// Lookahead marks text of a token inspected but not consumed.
	Lookahead
)

// String returns the stable attribute name.
func (a Attribute) String() string {
	switch a {
	case NonConsumed:
		return "non_consumed"
	case Consumed:
		return "consumed"
	case ConsumedHidden:
		return "hidden"
	case ConsumedDead:
		return "dead"
	case Lookahead:
		return "lookahead"
	default:
		return fmt.Sprintf("Attribute(%d)", int(a))
	}
}

// AttributeForConsume maps a consume kind to its buffer attribute.
func AttributeForConsume(kind event.ConsumeKind) Attribute {
	switch kind {
	case event.ConsumeNormal:
		return Consumed
	case event.ConsumeHidden:
		return ConsumedHidden
	case event.ConsumeDead:
		return ConsumedDead
	default:
		return Consumed
	}
}

// Span is the buffer region occupied by one token's text.
type Span struct {
	TokenIndex int
	Start      int
	End        int
	// Line and CharInLine hold the grammar location of the latest touch.
	Line       int
	CharInLine int
	Attribute  Attribute
	// Position is the trace position of the event that created the span.
	Position int
}

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Mark captures the model state needed to restore a point of the trace.
type Mark struct {
	Cursor     int
	Length     int
	Line       int
	CharInLine int
}

// Change describes the observable effect of one applied event.
type Change struct {
	// Touched is set when a token span changed attribute or text was inserted.
	Touched    bool
	TokenIndex int
	Attribute  Attribute
	// Located is set when the event moved the grammar location.
	Located    bool
	Line       int
	CharInLine int
	// Degraded carries ErrNonContiguousToken when persistence was disabled.
	Degraded error
}

// Run is a maximal byte range sharing one attribute.
type Run struct {
	Start     int
	End       int
	Attribute Attribute
}

// Snapshot is a comparable copy of the whole model state.
type Snapshot struct {
	Text             string
	Attributes       []Attribute
	Cursor           int
	Spans            []Span
	Persistent       bool
	PersistentLength int
	Line             int
	CharInLine       int
}

// Model is the reconstructed input buffer. It is safe for concurrent use.
type Model struct {
	mu sync.RWMutex

	text  []byte
	attrs []Attribute
	// cursor is where the next token will be inserted.
	cursor int

	// spans is dense by token index while persistence holds.
	spans            []Span
	persistent       bool
	persistentLength int
	brokenAt         int

	line       int
	charInLine int
}

// New creates an empty model in persistence mode.
func New() *Model {
	m := &Model{}
	m.Reset()
	return m
}

// Reset returns the model to the state of a brand new session, re-enabling
// persistence mode.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearLocked()
	m.persistent = true
	m.brokenAt = -1
}

// ResetAll returns the buffer to its initial empty state. Unlike Reset it keeps
// the persistence flag, so a degraded session stays degraded.
func (m *Model) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Model) clearLocked() {
	m.text = nil
	m.attrs = nil
	m.cursor = 0
	m.spans = nil
	m.persistentLength = 0
	m.line = 0
	m.charInLine = 0
}

// ApplyForward integrates one event into the buffer.
func (m *Model) ApplyForward(evt event.Event) Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch evt.Kind {
	case event.KindLocation:
		m.line = evt.Line
		m.charInLine = evt.CharInLine
		return Change{Located: true, Line: evt.Line, CharInLine: evt.CharInLine}
	case event.KindConsumeToken:
		return m.touchLocked(evt, AttributeForConsume(evt.Consume))
	case event.KindLookahead:
		return m.touchLocked(evt, Lookahead)
	case event.KindEnterRule, event.KindExitRule, event.KindBacktrackStart,
		event.KindBacktrackEnd, event.KindRecognitionException, event.KindTerminate:
		return Change{}
	default:
		return Change{}
	}
}

func (m *Model) touchLocked(evt event.Event, attr Attribute) Change {
	m.addTextLocked(evt.Token, attr)
	change := Change{Touched: true, TokenIndex: evt.Token.Index, Attribute: attr}
	if !m.addTokenLocked(evt.Token, evt.Position) {
		change.Degraded = ErrNonContiguousToken
	}
	return change
}

func (m *Model) addTextLocked(token event.Token, attr Attribute) {
	if m.persistent {
		if span, ok := m.spanLocked(token.Index); ok {
			m.setAttributeLocked(span.Start, span.End, attr)
			m.cursor = span.End
			return
		}
	}
	m.text = append(m.text, token.Text...)
	for range len(token.Text) {
		m.attrs = append(m.attrs, attr)
	}
	m.cursor = len(m.text)
}

// addTokenLocked records the span of token. It returns false when the token
// just disabled persistence mode.
func (m *Model) addTokenLocked(token event.Token, position int) bool {
	if !m.persistent {
		return true
	}
	index := token.Index
	if index < 0 || index > len(m.spans) {
		m.persistent = false
		m.brokenAt = position
		return false
	}
	if index < len(m.spans) {
		m.spans[index].Line = m.line
		m.spans[index].CharInLine = m.charInLine
		return true
	}
	m.spans = append(m.spans, Span{
		TokenIndex: index,
		Start:      m.persistentLength,
		End:        m.persistentLength + token.Len(),
		Line:       m.line,
		CharInLine: m.charInLine,
		Position:   position,
	})
	m.persistentLength += token.Len()
	return true
}

// RewindTo moves the buffer back to offset.
//
// In persistence mode text past max(persistentLength, offset) is removed and
// the retained span text between offset and that boundary is re-tagged as not
// consumed. Without persistence the buffer is truncated at offset.
func (m *Model) RewindTo(offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset = min(max(offset, 0), len(m.text))
	if !m.persistent {
		m.truncateLocked(offset)
		return
	}
	persistentStart := max(m.persistentLength, offset)
	if len(m.text) > persistentStart {
		m.truncateLocked(persistentStart)
	}
	if persistentStart > offset {
		m.setAttributeLocked(offset, persistentStart, NonConsumed)
		m.cursor = offset
	}
}

func (m *Model) truncateLocked(length int) {
	if length < len(m.text) {
		m.text = m.text[:length]
		m.attrs = m.attrs[:length]
	}
	m.cursor = len(m.text)
}

func (m *Model) setAttributeLocked(start, end int, attr Attribute) {
	end = min(end, len(m.attrs))
	for i := start; i < end; i++ {
		m.attrs[i] = attr
	}
}

// SetLocation records the latest grammar location.
func (m *Model) SetLocation(line, charInLine int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.line = line
	m.charInLine = charInLine
}

// Mark captures the cursor, text length and location.
func (m *Model) Mark() Mark {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Mark{Cursor: m.cursor, Length: len(m.text), Line: m.line, CharInLine: m.charInLine}
}

// Restore resets the cursor and location to a previous mark. Text is not
// changed; use RewindTo for that.
func (m *Model) Restore(mark Mark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = min(max(mark.Cursor, 0), len(m.text))
	m.line = mark.Line
	m.charInLine = mark.CharInLine
}

// Text returns the buffer text.
func (m *Model) Text() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return string(m.text)
}

// Len returns the buffer length in bytes.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.text)
}

// Cursor returns the insertion cursor.
func (m *Model) Cursor() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor
}

// Location returns the latest grammar location.
func (m *Model) Location() (line, charInLine int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.line, m.charInLine
}

// Persistent reports whether persistence mode still holds.
func (m *Model) Persistent() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persistent
}

// BrokenAt returns the trace position of the event that disabled persistence.
func (m *Model) BrokenAt() (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.brokenAt, !m.persistent
}

// PersistentLength returns the length of the text covered by spans.
func (m *Model) PersistentLength() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persistentLength
}

// Attribute returns the attribute of the byte at offset.
func (m *Model) Attribute(offset int) (Attribute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset < 0 || offset >= len(m.attrs) {
		return NonConsumed, false
	}
	return m.attrs[offset], true
}

// Span returns the span of a token index.
func (m *Model) Span(tokenIndex int) (Span, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spanLocked(tokenIndex)
}

func (m *Model) spanLocked(tokenIndex int) (Span, bool) {
	if tokenIndex < 0 || tokenIndex >= len(m.spans) {
		return Span{}, false
	}
	span := m.spans[tokenIndex]
	if span.Start < len(m.attrs) {
		span.Attribute = m.attrs[span.Start]
	}
	return span, true
}

// SpanAt returns the span covering a buffer offset.
func (m *Model) SpanAt(offset int) (Span, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.spans {
		if m.spans[i].Contains(offset) {
			return m.spanLocked(i)
		}
	}
	return Span{}, false
}

// Spans returns a copy of every known span ordered by token index.
func (m *Model) Spans() []Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Span, 0, len(m.spans))
	for i := range m.spans {
		span, _ := m.spanLocked(i)
		out = append(out, span)
	}
	return out
}

// Runs splits the buffer into maximal same-attribute ranges.
func (m *Model) Runs() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []Run
	for i, attr := range m.attrs {
		if n := len(runs); n > 0 && runs[n-1].Attribute == attr {
			runs[n-1].End = i + 1
			continue
		}
		runs = append(runs, Run{Start: i, End: i + 1, Attribute: attr})
	}
	return runs
}

// Snapshot copies the complete model state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := Snapshot{
		Text:             string(m.text),
		Attributes:       append([]Attribute(nil), m.attrs...),
		Cursor:           m.cursor,
		Persistent:       m.persistent,
		PersistentLength: m.persistentLength,
		Line:             m.line,
		CharInLine:       m.charInLine,
	}
	for i := range m.spans {
		span, _ := m.spanLocked(i)
		snapshot.Spans = append(snapshot.Spans, span)
	}
	return snapshot
}
