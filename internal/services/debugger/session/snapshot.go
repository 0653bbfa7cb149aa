package session

import (
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/recorder"
)

// Snapshot is the session view returned by every command.
type Snapshot struct {
	recorder.Snapshot
	Description string
	// Grammar is the grammar file announced by the recognizer or stored with
	// the replayed trace.
	Grammar string
	// Recognizer is the address of the live recognizer, empty offline.
	Recognizer string
	// TraceID is set while replaying a stored trace.
	TraceID string
}

// Result is the outcome of a command.
type Result struct {
	// Changed is false when the command had nothing to do, e.g. stepping
	// forward at the end of the trace.
	Changed  bool
	Snapshot Snapshot
}

// Snapshot captures the current session state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Snapshot {
	rs := s.recorder.Snapshot()
	return Snapshot{
		Snapshot:    rs,
		Description: rs.Description(),
		Grammar:     s.grammar,
		Recognizer:  s.recognizer,
		TraceID:     s.traceID,
	}
}
