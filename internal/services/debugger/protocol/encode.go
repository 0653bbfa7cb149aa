package protocol

import (
	"strconv"
	"strings"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

// EncodeToken renders a token as index, type, channel, line, pos and text.
func EncodeToken(token event.Token) string {
	return strings.Join([]string{
		strconv.Itoa(token.Index),
		strconv.Itoa(token.Type),
		strconv.Itoa(token.Channel),
		strconv.Itoa(token.Line),
		strconv.Itoa(token.CharInLine),
		`"` + Escape(token.Text),
	}, fieldSeparator)
}

// Encode renders the wire line of an event, without the trailing newline.
func Encode(evt event.Event) string {
	switch evt.Kind {
	case event.KindEnterRule:
		return join("enterRule", evt.Grammar, evt.Rule)
	case event.KindExitRule:
		return join("exitRule", evt.Grammar, evt.Rule)
	case event.KindLocation:
		return join("location", strconv.Itoa(evt.Line), strconv.Itoa(evt.CharInLine))
	case event.KindConsumeToken:
		name := "consumeToken"
		if evt.Consume == event.ConsumeHidden {
			name = "consumeHiddenToken"
		}
		return join(name, EncodeToken(evt.Token))
	case event.KindLookahead:
		return join("LT", strconv.Itoa(evt.Lookahead), EncodeToken(evt.Token))
	case event.KindBacktrackStart:
		return join("beginBacktrack", strconv.Itoa(evt.Backtrack))
	case event.KindBacktrackEnd:
		return join("endBacktrack", strconv.Itoa(evt.Backtrack), strconv.FormatBool(evt.Successful))
	case event.KindRecognitionException:
		return join("exception", evt.Exception, strconv.Itoa(evt.Token.Index),
			strconv.Itoa(evt.Line), strconv.Itoa(evt.CharInLine))
	case event.KindTerminate:
		return "terminate"
	default:
		return ""
	}
}

func join(fields ...string) string {
	return strings.Join(fields, fieldSeparator)
}
