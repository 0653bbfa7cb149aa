// Package player derives the parser context visible at a trace position.
package player

import (
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

// Context is the parser state after a prefix of the trace has been applied.
// It is recomputed from the log and never stored.
type Context struct {
	// Grammar is the grammar file of the innermost rule.
	Grammar string
	// Rules is the rule invocation stack, outermost first.
	Rules []string
	// Backtrack is the syntactic predicate nesting depth.
	Backtrack int
	// Located is set once a location event was seen.
	Located    bool
	Line       int
	CharInLine int
	// StoppedOn is the kind of the event playback is broken on, zero otherwise.
	StoppedOn event.Kind
	// Exception is the name of the latest recognition exception.
	Exception string
}

// Rule returns the innermost rule, or "" outside any rule.
func (c Context) Rule() string {
	if len(c.Rules) == 0 {
		return ""
	}
	return c.Rules[len(c.Rules)-1]
}

// Backtracking reports whether a syntactic predicate is being evaluated.
func (c Context) Backtracking() bool {
	return c.Backtrack > 0
}

// Compute folds events, in trace order, into a Context.
func Compute(events []event.Event) Context {
	var ctx Context
	var grammars []string
	for _, evt := range events {
		switch evt.Kind {
		case event.KindEnterRule:
			ctx.Rules = append(ctx.Rules, evt.Rule)
			grammars = append(grammars, evt.Grammar)
		case event.KindExitRule:
			if n := len(ctx.Rules); n > 0 {
				ctx.Rules = ctx.Rules[:n-1]
				grammars = grammars[:n-1]
			}
		case event.KindLocation:
			ctx.Located = true
			ctx.Line = evt.Line
			ctx.CharInLine = evt.CharInLine
		case event.KindBacktrackStart:
			ctx.Backtrack++
		case event.KindBacktrackEnd:
			ctx.Backtrack = max(ctx.Backtrack-1, 0)
		case event.KindRecognitionException:
			ctx.Exception = evt.Exception
		case event.KindConsumeToken, event.KindLookahead, event.KindTerminate:
		}
	}
	if n := len(grammars); n > 0 {
		ctx.Grammar = grammars[n-1]
	}
	return ctx
}
