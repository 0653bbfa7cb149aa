package breakpoint

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

const conditionGlobal = "__breakpoint_condition"

// Condition is a Lua boolean expression evaluated against candidate events.
//
// The expression sees the globals kind, rule, grammar, token_index, text,
// line, pos and backtrack. For example:
//
//	kind == "consume" and text == "if"
//	rule == "expr" and backtrack > 0
//
// A Lua state is not goroutine safe, so evaluation is serialized.
type Condition struct {
	mu     sync.Mutex
	source string
	state  *lua.State
	onErr  func(error)
}

// ConditionOption configures a Condition.
type ConditionOption func(*Condition)

// WithErrorHandler receives evaluation failures. Failed evaluations count as a match.
func WithErrorHandler(fn func(error)) ConditionOption {
	return func(c *Condition) {
		c.onErr = fn
	}
}

// NewCondition compiles a Lua expression.
func NewCondition(source string, opts ...ConditionOption) (*Condition, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("condition source is required")
	}

	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadString(state, "return ("+source+")"); err != nil {
		return nil, fmt.Errorf("compile condition: %w", err)
	}
	state.SetGlobal(conditionGlobal)

	condition := &Condition{source: source, state: state}
	for _, opt := range opts {
		if opt != nil {
			opt(condition)
		}
	}
	return condition, nil
}

// Source returns the expression text.
func (c *Condition) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// Match evaluates the expression for evt.
func (c *Condition) Match(evt event.Event) bool {
	if c == nil {
		return true
	}
	ok, err := c.Eval(evt)
	if err != nil {
		if c.onErr != nil {
			c.onErr(err)
		}
		return true
	}
	return ok
}

// Eval evaluates the expression for evt and reports Lua errors.
func (c *Condition) Eval(evt event.Event) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil {
		return false, fmt.Errorf("condition is closed")
	}
	c.bindLocked(evt)

	c.state.Global(conditionGlobal)
	if err := c.state.ProtectedCall(0, 1, 0); err != nil {
		// The error value is left on the stack.
		c.state.Pop(1)
		return false, fmt.Errorf("evaluate condition %q: %w", c.source, err)
	}
	result := c.state.ToBoolean(-1)
	c.state.Pop(1)
	return result, nil
}

func (c *Condition) bindLocked(evt event.Event) {
	l := c.state
	l.PushString(evt.Kind.Name())
	l.SetGlobal("kind")
	l.PushString(evt.Rule)
	l.SetGlobal("rule")
	l.PushString(evt.Grammar)
	l.SetGlobal("grammar")
	l.PushInteger(evt.Token.Index)
	l.SetGlobal("token_index")
	l.PushString(evt.Token.Text)
	l.SetGlobal("text")
	line, pos := evt.Line, evt.CharInLine
	if evt.HasToken() {
		line, pos = evt.Token.Line, evt.Token.CharInLine
	}
	l.PushInteger(line)
	l.SetGlobal("line")
	l.PushInteger(pos)
	l.SetGlobal("pos")
	l.PushInteger(evt.Backtrack)
	l.SetGlobal("backtrack")
}

// Close releases the Lua state.
func (c *Condition) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = nil
}
