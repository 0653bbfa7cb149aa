package session

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/JohnPiwinski/antlrworks/internal/platform/errors"
	"github.com/JohnPiwinski/antlrworks/internal/platform/grpc/pagination"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/recorder"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage"
)

// SaveTrace stores the events recorded so far. An empty name defaults to the
// generated trace id.
func (s *Service) SaveTrace(ctx context.Context, name string) (summary storage.TraceSummary, err error) {
	ctx, span := s.start(ctx, "session.SaveTrace")
	defer func() { finish(span, err) }()

	if s.store == nil {
		return storage.TraceSummary{}, apperrors.New(apperrors.CodeStorageNotConfigured, "trace storage is not configured")
	}
	events := s.recorder.Events()
	if len(events) == 0 {
		return storage.TraceSummary{}, apperrors.New(apperrors.CodeSessionEmpty, "no events recorded")
	}
	s.mu.Lock()
	grammar := s.grammar
	s.mu.Unlock()

	summary, err = s.store.SaveTrace(ctx, storage.Trace{
		TraceSummary: storage.TraceSummary{Name: strings.TrimSpace(name), Grammar: grammar},
		Events:       events,
	})
	if err != nil {
		return storage.TraceSummary{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "save trace", err)
	}
	span.SetAttributes(attribute.String("trace.id", summary.ID), attribute.Int("trace.events", summary.EventCount))
	s.logf("saved trace %s (%d events)", summary.ID, summary.EventCount)
	return summary, nil
}

// LoadTrace replays a stored trace offline. The session must be stopped.
func (s *Service) LoadTrace(ctx context.Context, traceID string) (snapshot Snapshot, err error) {
	ctx, span := s.start(ctx, "session.LoadTrace")
	defer func() { finish(span, err) }()

	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return Snapshot{}, apperrors.WithMetadata(apperrors.CodeArgumentInvalid, "trace id is required", map[string]string{"Field": "trace_id"})
	}
	if s.store == nil {
		return Snapshot{}, apperrors.New(apperrors.CodeStorageNotConfigured, "trace storage is not configured")
	}
	span.SetAttributes(attribute.String("trace.id", traceID))

	trace, err := s.store.GetTrace(ctx, traceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Snapshot{}, apperrors.WrapWithMetadata(apperrors.CodeTraceNotFound, "load trace", map[string]string{"TraceID": traceID}, err)
		}
		return Snapshot{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "load trace", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorder.Status() != recorder.StatusStopped {
		return Snapshot{}, apperrors.New(apperrors.CodeSessionActive, "debug session is active")
	}
	s.stopRunLocked()
	if err := s.recorder.Load(trace.Events); err != nil {
		if errors.Is(err, recorder.ErrSessionActive) {
			return Snapshot{}, apperrors.New(apperrors.CodeSessionActive, "debug session is active")
		}
		return Snapshot{}, apperrors.WrapWithMetadata(apperrors.CodeTraceInvalid, "load trace", map[string]string{"TraceID": traceID}, err)
	}
	s.live.Store(false)
	s.grammar, s.recognizer, s.traceID = trace.Grammar, "", trace.ID
	s.logf("replaying trace %s (%d events)", trace.ID, len(trace.Events))
	return s.snapshotLocked(), nil
}

// ListTraces returns the newest stored traces. The limit is clamped to the
// trace page size bounds.
func (s *Service) ListTraces(ctx context.Context, limit int) (summaries []storage.TraceSummary, err error) {
	ctx, span := s.start(ctx, "session.ListTraces")
	defer func() { finish(span, err) }()

	if s.store == nil {
		return nil, apperrors.New(apperrors.CodeStorageNotConfigured, "trace storage is not configured")
	}
	summaries, err = s.store.ListTraces(ctx, pagination.ClampPageSize(limit, pagination.Traces))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list traces", err)
	}
	return summaries, nil
}

// DeleteTrace removes a stored trace.
func (s *Service) DeleteTrace(ctx context.Context, traceID string) (err error) {
	ctx, span := s.start(ctx, "session.DeleteTrace")
	defer func() { finish(span, err) }()

	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return apperrors.WithMetadata(apperrors.CodeArgumentInvalid, "trace id is required", map[string]string{"Field": "trace_id"})
	}
	if s.store == nil {
		return apperrors.New(apperrors.CodeStorageNotConfigured, "trace storage is not configured")
	}
	if err := s.store.DeleteTrace(ctx, traceID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WrapWithMetadata(apperrors.CodeTraceNotFound, "delete trace", map[string]string{"TraceID": traceID}, err)
		}
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "delete trace", err)
	}
	s.logf("deleted trace %s", traceID)
	return nil
}
