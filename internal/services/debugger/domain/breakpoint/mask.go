// Package breakpoint decides, event by event, whether playback should halt.
package breakpoint

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

// AllName is the selector name of the wildcard that matches every event.
const AllName = "all"

// Matcher reports whether playback should stop on an event.
type Matcher interface {
	ShouldBreak(evt event.Event) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(evt event.Event) bool

// ShouldBreak implements Matcher.
func (fn MatcherFunc) ShouldBreak(evt event.Event) bool {
	return fn(evt)
}

// Always matches every event.
var Always Matcher = MatcherFunc(func(event.Event) bool { return true })

// Never matches no event.
var Never Matcher = MatcherFunc(func(event.Event) bool { return false })

// Mask is the configurable set of event kinds and input positions to break on.
//
// At least one kind is always active: clearing the last kind turns the ALL
// wildcard back on. Mask is safe for concurrent use.
type Mask struct {
	mu        sync.RWMutex
	all       bool
	kinds     map[event.Kind]bool
	spans     map[int]bool
	condition *Condition
}

// NewMask creates a mask that breaks on the given kinds. Without kinds it
// breaks on token consumption.
func NewMask(kinds ...event.Kind) *Mask {
	m := &Mask{kinds: make(map[event.Kind]bool), spans: make(map[int]bool)}
	if len(kinds) == 0 {
		kinds = []event.Kind{event.KindConsumeToken}
	}
	for _, kind := range kinds {
		if kind.Valid() {
			m.kinds[kind] = true
		}
	}
	m.ensureActiveLocked()
	return m
}

// NewAllMask creates a mask that breaks on every event.
func NewAllMask() *Mask {
	m := &Mask{kinds: make(map[event.Kind]bool), spans: make(map[int]bool), all: true}
	return m
}

// ParseMask builds a mask from a comma separated selector list such as
// "consume,lt" or "all".
func ParseMask(value string) (*Mask, error) {
	m := &Mask{kinds: make(map[event.Kind]bool), spans: make(map[int]bool)}
	for _, part := range strings.Split(value, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, AllName) {
			m.all = true
			continue
		}
		kind, err := event.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("parse break mask: %w", err)
		}
		m.kinds[kind] = true
	}
	if !m.all && len(m.kinds) == 0 {
		m.kinds[event.KindConsumeToken] = true
	}
	return m, nil
}

// WithSelectors returns a mask breaking on the selectors in value that keeps
// the span breakpoints and condition of m.
func (m *Mask) WithSelectors(value string) (*Mask, error) {
	override, err := ParseMask(value)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for index := range m.spans {
		override.spans[index] = true
	}
	override.condition = m.condition
	return override, nil
}

// ShouldBreak reports whether evt satisfies the mask: ALL is set, the event
// kind is selected, or a token event touches a span breakpoint. When a
// condition is installed it must also hold.
func (m *Mask) ShouldBreak(evt event.Event) bool {
	m.mu.RLock()
	matched := m.all || m.kinds[evt.Kind] || (evt.HasToken() && m.spans[evt.Token.Index])
	condition := m.condition
	m.mu.RUnlock()

	if !matched {
		return false
	}
	if condition == nil {
		return true
	}
	return condition.Match(evt)
}

// Toggle flips one event kind. Clearing the last active kind enables ALL.
func (m *Mask) Toggle(kind event.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !kind.Valid() {
		return false
	}
	if m.kinds[kind] {
		delete(m.kinds, kind)
	} else {
		m.kinds[kind] = true
	}
	m.ensureActiveLocked()
	return m.kinds[kind]
}

// ToggleAll flips the ALL wildcard. It stays on when no kind is selected.
func (m *Mask) ToggleAll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.all = !m.all
	m.ensureActiveLocked()
	return m.all
}

// ToggleSelector flips a kind or the wildcard named by value.
func (m *Mask) ToggleSelector(value string) (bool, error) {
	if strings.EqualFold(strings.TrimSpace(value), AllName) {
		return m.ToggleAll(), nil
	}
	kind, err := event.ParseKind(value)
	if err != nil {
		return false, err
	}
	return m.Toggle(kind), nil
}

// ToggleSpan flips the input breakpoint on a token index and reports whether
// it is now set.
func (m *Mask) ToggleSpan(tokenIndex int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tokenIndex < 0 {
		return false
	}
	if m.spans[tokenIndex] {
		delete(m.spans, tokenIndex)
		return false
	}
	m.spans[tokenIndex] = true
	return true
}

// HasSpan reports whether a token index carries an input breakpoint.
func (m *Mask) HasSpan(tokenIndex int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spans[tokenIndex]
}

// SetCondition installs a condition ANDed with the kind and span match. A nil
// condition removes it.
func (m *Mask) SetCondition(condition *Condition) {
	m.mu.Lock()
	previous := m.condition
	m.condition = condition
	m.mu.Unlock()

	if previous != nil && previous != condition {
		previous.Close()
	}
}

// Condition returns the installed condition source, if any.
func (m *Mask) Condition() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.condition == nil {
		return ""
	}
	return m.condition.Source()
}

// All reports whether the wildcard is active.
func (m *Mask) All() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.all
}

// Kinds returns the selected kinds in declaration order.
func (m *Mask) Kinds() []event.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var kinds []event.Kind
	for _, kind := range event.Kinds {
		if m.kinds[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Spans returns the token indices carrying input breakpoints, ascending.
func (m *Mask) Spans() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spans := make([]int, 0, len(m.spans))
	for index := range m.spans {
		spans = append(spans, index)
	}
	sort.Ints(spans)
	return spans
}

// Selectors returns the active selector names, "all" first.
func (m *Mask) Selectors() []string {
	var names []string
	if m.All() {
		names = append(names, AllName)
	}
	for _, kind := range m.Kinds() {
		names = append(names, kind.Name())
	}
	return names
}

// String renders the mask as a selector list.
func (m *Mask) String() string {
	return strings.Join(m.Selectors(), ",")
}

func (m *Mask) ensureActiveLocked() {
	if len(m.kinds) == 0 {
		m.all = true
	}
}
