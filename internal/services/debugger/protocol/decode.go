package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

const fieldSeparator = "\t"

// isIgnored reports events the debugger acknowledges without recording.
func isIgnored(name string) bool {
	switch name {
	case "commence", "enterAlt", "enterSubRule", "exitSubRule", "enterDecision",
		"exitDecision", "mark", "rewind", "beginResync", "endResync", "semanticPredicate":
		return true
	case "consumeNode", "LN", "nilNode", "errorNode", "createNodeFromTokenElements",
		"createNode", "becomeRoot", "addChild", "setTokenBoundaries":
		return true
	default:
		return false
	}
}

// Decoder turns event lines into trace events with consecutive positions.
// It tracks the backtracking depth to classify consumed tokens as dead.
type Decoder struct {
	position  int
	backtrack int
}

// NewDecoder creates a decoder starting at trace position 0.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Position returns the trace position of the next decoded event.
func (d *Decoder) Position() int {
	return d.position
}

// Decode parses one line. It returns ok=false for lines that are valid but
// not recorded.
func (d *Decoder) Decode(line string) (evt event.Event, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, fieldSeparator)
	name := fields[0]
	args := fields[1:]

	switch name {
	case "enterRule", "exitRule":
		if len(args) < 2 {
			return event.Event{}, false, malformed(line)
		}
		evt.Kind = event.KindEnterRule
		if name == "exitRule" {
			evt.Kind = event.KindExitRule
		}
		evt.Grammar = args[0]
		evt.Rule = args[1]
	case "location":
		if len(args) < 2 {
			return event.Event{}, false, malformed(line)
		}
		evt.Kind = event.KindLocation
		if evt.Line, err = strconv.Atoi(args[0]); err != nil {
			return event.Event{}, false, malformed(line)
		}
		if evt.CharInLine, err = strconv.Atoi(args[1]); err != nil {
			return event.Event{}, false, malformed(line)
		}
	case "consumeToken", "consumeHiddenToken":
		token, err := decodeToken(args)
		if err != nil {
			return event.Event{}, false, fmt.Errorf("%w: %q: %v", ErrMalformed, line, err)
		}
		evt.Kind = event.KindConsumeToken
		evt.Token = token
		switch {
		case d.backtrack > 0:
			evt.Consume = event.ConsumeDead
		case name == "consumeHiddenToken":
			evt.Consume = event.ConsumeHidden
		default:
			evt.Consume = event.ConsumeNormal
		}
	case "LT":
		if len(args) < 1 {
			return event.Event{}, false, malformed(line)
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return event.Event{}, false, malformed(line)
		}
		token, err := decodeToken(args[1:])
		if err != nil {
			return event.Event{}, false, fmt.Errorf("%w: %q: %v", ErrMalformed, line, err)
		}
		evt.Kind = event.KindLookahead
		evt.Lookahead = i
		evt.Token = token
	case "beginBacktrack":
		level, err := atoiArg(args, 0)
		if err != nil {
			return event.Event{}, false, malformed(line)
		}
		d.backtrack++
		evt.Kind = event.KindBacktrackStart
		evt.Backtrack = level
	case "endBacktrack":
		level, err := atoiArg(args, 0)
		if err != nil {
			return event.Event{}, false, malformed(line)
		}
		d.backtrack = max(d.backtrack-1, 0)
		evt.Kind = event.KindBacktrackEnd
		evt.Backtrack = level
		if len(args) > 1 {
			evt.Successful = args[1] == "true" || args[1] == "1"
		}
	case "exception":
		if len(args) < 4 {
			return event.Event{}, false, malformed(line)
		}
		evt.Kind = event.KindRecognitionException
		evt.Exception = args[0]
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return event.Event{}, false, malformed(line)
		}
		evt.Token.Index = index
		if evt.Line, err = strconv.Atoi(args[2]); err != nil {
			return event.Event{}, false, malformed(line)
		}
		if evt.CharInLine, err = strconv.Atoi(args[3]); err != nil {
			return event.Event{}, false, malformed(line)
		}
	case "terminate":
		evt.Kind = event.KindTerminate
	default:
		if isIgnored(name) {
			return event.Event{}, false, nil
		}
		return event.Event{}, false, fmt.Errorf("%w: unknown event %q", ErrMalformed, name)
	}

	evt.Position = d.position
	d.position++
	return evt, true, nil
}

func malformed(line string) error {
	return fmt.Errorf("%w: %q", ErrMalformed, line)
}

func atoiArg(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	return strconv.Atoi(args[i])
}

// decodeToken parses index, type, channel, line, pos and the quoted text.
func decodeToken(fields []string) (event.Token, error) {
	if len(fields) < 6 {
		return event.Token{}, fmt.Errorf("token has %d fields, want 6", len(fields))
	}
	var ints [5]int
	for i := range ints {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return event.Token{}, fmt.Errorf("token field %d: %w", i, err)
		}
		ints[i] = v
	}
	// the text may itself contain tabs
	text := strings.Join(fields[5:], fieldSeparator)
	text = strings.TrimPrefix(text, `"`)
	return event.Token{
		Index:      ints[0],
		Type:       ints[1],
		Channel:    ints[2],
		Line:       ints[3],
		CharInLine: ints[4],
		Text:       Unescape(text),
	}, nil
}

var (
	unescaper = strings.NewReplacer("%0A", "\n", "%0D", "\r", "%25", "%")
	escaper   = strings.NewReplacer("%", "%25", "\n", "%0A", "\r", "%0D")
)

// Unescape decodes token text sent over the wire.
func Unescape(text string) string {
	return unescaper.Replace(text)
}

// Escape encodes token text for the wire.
func Escape(text string) string {
	return escaper.Replace(text)
}
