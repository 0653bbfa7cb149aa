package recorder

import (
	"fmt"
	"strings"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/player"
)

// Status is the lifecycle state of a debug session.
type Status int

const (
	// StatusStopped means no session is active.
	StatusStopped Status = iota
	// StatusLaunching means a session was requested and no event arrived yet.
	StatusLaunching
	// StatusRunning means playback follows the live end of the trace.
	StatusRunning
	// StatusBreak means playback is halted on an event.
	StatusBreak
	// StatusStopping means the session is draining before STOPPED.
	StatusStopping
)

// String returns the stable status name.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusLaunching:
		return "launching"
	case StatusRunning:
		return "running"
	case StatusBreak:
		return "break"
	case StatusStopping:
		return "stopping"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Alive reports whether the status allows navigation.
func (s Status) Alive() bool {
	return s == StatusRunning || s == StatusBreak
}

// Describe renders the status line shown to users, for example
// "Break on Consume (backtrack 1)".
func Describe(status Status, stoppedOn event.Kind, ctx player.Context) string {
	var b strings.Builder
	switch status {
	case StatusStopped:
		b.WriteString("Stopped")
	case StatusStopping:
		b.WriteString("Stopping")
	case StatusLaunching:
		b.WriteString("Launching")
	case StatusRunning:
		b.WriteString("Running")
	case StatusBreak:
		b.WriteString("Break")
		if stoppedOn.Valid() {
			b.WriteString(" on ")
			b.WriteString(stoppedOn.String())
		}
	default:
		b.WriteString(status.String())
	}
	if ctx.Backtracking() {
		fmt.Fprintf(&b, " (backtrack %d)", ctx.Backtrack)
	}
	return b.String()
}

// Controls reports which commands are meaningful in the current state.
type Controls struct {
	Stop        bool
	Backward    bool
	Forward     bool
	StepOver    bool
	FastForward bool
	GoToStart   bool
	GoToEnd     bool
}
