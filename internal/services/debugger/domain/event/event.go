package event

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a recognizer event.
type Kind int

const (
	// KindLocation reports the grammar line and column the recognizer is at.
	KindLocation Kind = iota + 1
	// KindConsumeToken reports a token consumed from the input stream.
	KindConsumeToken
	// KindLookahead reports a token inspected by LT(i) without consuming it.
	KindLookahead
	// KindEnterRule reports entry into a grammar rule.
	KindEnterRule
	// KindExitRule reports exit from a grammar rule.
	KindExitRule
	// KindBacktrackStart reports the start of a syntactic predicate evaluation.
	KindBacktrackStart
	// KindBacktrackEnd reports the end of a syntactic predicate evaluation.
	KindBacktrackEnd
	// KindRecognitionException reports a recognition error raised by the recognizer.
	KindRecognitionException
	// KindTerminate reports that the recognizer finished.
	KindTerminate
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{
	KindLocation,
	KindConsumeToken,
	KindLookahead,
	KindEnterRule,
	KindExitRule,
	KindBacktrackStart,
	KindBacktrackEnd,
	KindRecognitionException,
	KindTerminate,
}

// String returns the display name of the kind.
func (k Kind) String() string {
	switch k {
	case KindLocation:
		return "Location"
	case KindConsumeToken:
		return "Consume"
	case KindLookahead:
		return "LT"
	case KindEnterRule:
		return "Enter Rule"
	case KindExitRule:
		return "Exit Rule"
	case KindBacktrackStart:
		return "Begin Backtrack"
	case KindBacktrackEnd:
		return "End Backtrack"
	case KindRecognitionException:
		return "Exception"
	case KindTerminate:
		return "Terminate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Name returns the stable lower-case identifier used in config, storage and APIs.
func (k Kind) Name() string {
	switch k {
	case KindLocation:
		return "location"
	case KindConsumeToken:
		return "consume"
	case KindLookahead:
		return "lt"
	case KindEnterRule:
		return "enter_rule"
	case KindExitRule:
		return "exit_rule"
	case KindBacktrackStart:
		return "begin_backtrack"
	case KindBacktrackEnd:
		return "end_backtrack"
	case KindRecognitionException:
		return "exception"
	case KindTerminate:
		return "terminate"
	default:
		return ""
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindLocation && k <= KindTerminate
}

// ParseKind resolves a kind from its stable name. Matching ignores case and
// surrounding whitespace.
func ParseKind(value string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(value))
	for _, kind := range Kinds {
		if kind.Name() == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", value)
}

// ConsumeKind qualifies a token consumption.
type ConsumeKind int

const (
	// ConsumeNormal is a token consumed on the default channel.
	ConsumeNormal ConsumeKind = iota
	// ConsumeHidden is a token consumed from a hidden channel.
	ConsumeHidden
	// ConsumeDead is a token consumed while backtracking; it will be rewound.
	ConsumeDead
)

// String returns the stable name of the consume kind.
func (c ConsumeKind) String() string {
	switch c {
	case ConsumeNormal:
		return "normal"
	case ConsumeHidden:
		return "hidden"
	case ConsumeDead:
		return "dead"
	default:
		return fmt.Sprintf("ConsumeKind(%d)", int(c))
	}
}

// ParseConsumeKind resolves a consume kind from its stable name.
func ParseConsumeKind(value string) (ConsumeKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "normal":
		return ConsumeNormal, nil
	case "hidden":
		return ConsumeHidden, nil
	case "dead":
		return ConsumeDead, nil
	default:
		return 0, fmt.Errorf("unknown consume kind %q", value)
	}
}

// InvalidTokenIndex marks a token that has no position in the token stream.
const InvalidTokenIndex = -1

// Token references one token of the recognizer input.
type Token struct {
	Index      int
	Type       int
	Channel    int
	Text       string
	Line       int
	CharInLine int
}

// Len returns the length of the token text in bytes.
func (t Token) Len() int {
	return len(t.Text)
}

// Event is one recorded recognizer event.
//
// Only the fields relevant to Kind are populated: Token for consume and
// lookahead events, Rule and Grammar for rule events, Backtrack for
// backtracking markers, Line and CharInLine for locations and exceptions.
type Event struct {
	Position   int
	Kind       Kind
	Consume    ConsumeKind
	Token      Token
	Lookahead  int
	Grammar    string
	Rule       string
	Backtrack  int
	Successful bool
	Line       int
	CharInLine int
	Exception  string
}

// HasToken reports whether the event references an input token.
func (e Event) HasToken() bool {
	switch e.Kind {
	case KindConsumeToken, KindLookahead:
		return true
	case KindLocation, KindEnterRule, KindExitRule, KindBacktrackStart,
		KindBacktrackEnd, KindRecognitionException, KindTerminate:
		return false
	default:
		return false
	}
}

// String renders the event for logs and status displays.
func (e Event) String() string {
	switch e.Kind {
	case KindLocation:
		return fmt.Sprintf("#%d location %d:%d", e.Position, e.Line, e.CharInLine)
	case KindConsumeToken:
		return fmt.Sprintf("#%d consume %s token %d %q", e.Position, e.Consume, e.Token.Index, e.Token.Text)
	case KindLookahead:
		return fmt.Sprintf("#%d LT(%d) token %d %q", e.Position, e.Lookahead, e.Token.Index, e.Token.Text)
	case KindEnterRule:
		return fmt.Sprintf("#%d enter rule %s", e.Position, e.Rule)
	case KindExitRule:
		return fmt.Sprintf("#%d exit rule %s", e.Position, e.Rule)
	case KindBacktrackStart:
		return fmt.Sprintf("#%d begin backtrack %d", e.Position, e.Backtrack)
	case KindBacktrackEnd:
		return fmt.Sprintf("#%d end backtrack %d successful=%t", e.Position, e.Backtrack, e.Successful)
	case KindRecognitionException:
		return fmt.Sprintf("#%d exception %s at %d:%d", e.Position, e.Exception, e.Line, e.CharInLine)
	case KindTerminate:
		return fmt.Sprintf("#%d terminate", e.Position)
	default:
		return fmt.Sprintf("#%d %s", e.Position, e.Kind)
	}
}
