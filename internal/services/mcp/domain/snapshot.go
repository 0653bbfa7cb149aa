package domain

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Snapshot is the debug session state returned by every debugger tool.
type Snapshot struct {
	Status      string        `json:"status" jsonschema:"session status (stopped, launching, running, break, stopping)"`
	Description string        `json:"description" jsonschema:"status line, e.g. Break on Consume (backtrack 1)"`
	StoppedOn   string        `json:"stopped_on,omitempty" jsonschema:"event kind playback is broken on"`
	Position    int           `json:"position" jsonschema:"trace position of the current event, -1 before the first"`
	Length      int           `json:"length" jsonschema:"number of recorded events"`
	Terminated  bool          `json:"terminated" jsonschema:"whether the recognizer finished"`
	Offline     bool          `json:"offline" jsonschema:"whether a stored trace is being replayed"`
	Grammar     string        `json:"grammar,omitempty" jsonschema:"grammar file of the session"`
	Recognizer  string        `json:"recognizer,omitempty" jsonschema:"address of the live recognizer"`
	TraceID     string        `json:"trace_id,omitempty" jsonschema:"stored trace being replayed"`
	Context     PlayerContext `json:"context" jsonschema:"parser context at the current event"`
	Input       Input         `json:"input" jsonschema:"reconstructed input buffer"`
	Controls    Controls      `json:"controls" jsonschema:"commands that are currently meaningful"`
	Breakpoints Breakpoints   `json:"breakpoints" jsonschema:"active breakpoints"`
}

// PlayerContext is the parser state at the current event.
type PlayerContext struct {
	Grammar    string   `json:"grammar,omitempty" jsonschema:"grammar of the innermost rule"`
	Rule       string   `json:"rule,omitempty" jsonschema:"innermost rule"`
	Rules      []string `json:"rules" jsonschema:"rule invocation stack, outermost first"`
	Backtrack  int      `json:"backtrack" jsonschema:"syntactic predicate nesting depth"`
	Located    bool     `json:"located" jsonschema:"whether a grammar location is known"`
	Line       int      `json:"line" jsonschema:"grammar line"`
	CharInLine int      `json:"char_in_line" jsonschema:"grammar column"`
	Exception  string   `json:"exception,omitempty" jsonschema:"latest recognition exception"`
}

// Input is the reconstructed input buffer.
type Input struct {
	Text             string `json:"text" jsonschema:"text consumed or looked ahead so far"`
	Cursor           int    `json:"cursor" jsonschema:"buffer offset of the current token"`
	Persistent       bool   `json:"persistent" jsonschema:"whether earlier text is kept when stepping back"`
	PersistentLength int    `json:"persistent_length" jsonschema:"buffer length while persistence held"`
	Spans            []Span `json:"spans" jsonschema:"token spans"`
	Runs             []Run  `json:"runs" jsonschema:"maximal ranges sharing one attribute"`
}

// Span is the buffer region of one token.
type Span struct {
	TokenIndex int    `json:"token_index" jsonschema:"token index"`
	Start      int    `json:"start" jsonschema:"first byte offset"`
	End        int    `json:"end" jsonschema:"offset past the last byte"`
	Attribute  string `json:"attribute" jsonschema:"non_consumed, consumed, hidden, dead or lookahead"`
	Line       int    `json:"line" jsonschema:"grammar line of the latest touch"`
	CharInLine int    `json:"char_in_line" jsonschema:"grammar column of the latest touch"`
}

// Run is a buffer range sharing one attribute.
type Run struct {
	Start     int    `json:"start" jsonschema:"first byte offset"`
	End       int    `json:"end" jsonschema:"offset past the last byte"`
	Attribute string `json:"attribute" jsonschema:"attribute of the range"`
}

// Controls reports which commands are currently meaningful.
type Controls struct {
	Stop        bool `json:"stop"`
	Backward    bool `json:"backward"`
	Forward     bool `json:"forward"`
	StepOver    bool `json:"step_over"`
	FastForward bool `json:"fast_forward"`
	GoToStart   bool `json:"go_to_start"`
	GoToEnd     bool `json:"go_to_end"`
}

// Breakpoints lists the active breakpoints.
type Breakpoints struct {
	Kinds     []string `json:"kinds" jsonschema:"event kinds that break, all when every kind breaks"`
	Spans     []int    `json:"spans" jsonschema:"token indexes with span breakpoints"`
	Condition string   `json:"condition,omitempty" jsonschema:"Lua condition ANDed with the kind match"`
}

// Trace summarizes a stored trace.
type Trace struct {
	ID         string `json:"id" jsonschema:"trace identifier"`
	Name       string `json:"name" jsonschema:"trace name"`
	Grammar    string `json:"grammar,omitempty" jsonschema:"grammar file of the recorded session"`
	EventCount int    `json:"event_count" jsonschema:"number of events"`
	CreatedAt  string `json:"created_at" jsonschema:"RFC3339 timestamp when the trace was stored"`
}

// decodeStruct maps a Struct response onto a typed result through its JSON form.
func decodeStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return fmt.Errorf("response is missing")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
