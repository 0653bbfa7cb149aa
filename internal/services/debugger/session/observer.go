package session

import (
	"context"
	"fmt"
	"time"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/inputtrace"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/recorder"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage"
)

// sessionObserver logs transitions and schedules auto-saves. It runs inside
// recorder callbacks, so it never takes the service mutex.
type sessionObserver struct {
	s *Service
}

func (o sessionObserver) OnStatusChanged(status recorder.Status) {
	o.s.logf("session %s", status)
	if status == recorder.StatusStopped {
		o.s.scheduleAutosave()
	}
}

func (o sessionObserver) OnSpanHighlighted(int, inputtrace.Attribute) {}

func (o sessionObserver) OnLocationResolved(int, int) {}

func (o sessionObserver) OnSessionTerminated(err error) {
	o.s.logf("session terminated: %v", err)
}

func (s *Service) scheduleAutosave() {
	if !s.cfg.Autosave || s.store == nil || !s.live.Load() {
		return
	}
	if s.recorder.Len() == 0 || !s.autosaved.CompareAndSwap(false, true) {
		return
	}
	events := s.recorder.Events()
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.mu.Lock()
		grammar, recognizer := s.grammar, s.recognizer
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ctx, span := s.start(ctx, "session.Autosave")
		summary, err := s.store.SaveTrace(ctx, storage.Trace{
			TraceSummary: storage.TraceSummary{
				Name:    autosaveName(grammar, recognizer),
				Grammar: grammar,
			},
			Events: events,
		})
		finish(span, err)
		if err != nil {
			s.logf("autosave trace: %v", err)
			return
		}
		s.logf("autosaved trace %s (%d events)", summary.ID, summary.EventCount)
	}()
}

func autosaveName(grammar, recognizer string) string {
	subject := grammar
	if subject == "" {
		subject = recognizer
	}
	return fmt.Sprintf("%s %s", subject, time.Now().UTC().Format(time.RFC3339))
}
