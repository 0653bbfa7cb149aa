// Package storage defines persistence contracts for recorded debug traces.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
)

// ErrNotFound indicates a requested trace is missing.
var ErrNotFound = errors.New("record not found")

// TraceSummary describes one stored trace without its events.
type TraceSummary struct {
	ID         string
	Name       string
	Grammar    string
	EventCount int
	CreatedAt  time.Time
}

// Trace is a stored trace with its events in trace order.
type Trace struct {
	TraceSummary
	Events []event.Event
}

// TraceStore persists recorded traces for offline replay.
type TraceStore interface {
	// SaveTrace stores a trace and returns its summary. An empty ID is assigned.
	SaveTrace(ctx context.Context, trace Trace) (TraceSummary, error)
	GetTrace(ctx context.Context, id string) (Trace, error)
	// ListTraces lists newest-first summaries.
	ListTraces(ctx context.Context, limit int) ([]TraceSummary, error)
	DeleteTrace(ctx context.Context, id string) error
}
