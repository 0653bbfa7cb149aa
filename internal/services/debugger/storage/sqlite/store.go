package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohnPiwinski/antlrworks/internal/platform/id"
	sqlitemigrate "github.com/JohnPiwinski/antlrworks/internal/platform/storage/sqlitemigrate"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed trace persistence.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a trace SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if _, err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveTrace persists a trace and its events in one transaction.
func (s *Store) SaveTrace(ctx context.Context, trace storage.Trace) (storage.TraceSummary, error) {
	if err := ctx.Err(); err != nil {
		return storage.TraceSummary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TraceSummary{}, fmt.Errorf("storage is not configured")
	}

	summary := trace.TraceSummary
	summary.ID = strings.TrimSpace(summary.ID)
	summary.Name = strings.TrimSpace(summary.Name)
	summary.Grammar = strings.TrimSpace(summary.Grammar)
	if summary.ID == "" {
		generated, err := id.NewID()
		if err != nil {
			return storage.TraceSummary{}, err
		}
		summary.ID = generated
	}
	if summary.Name == "" {
		summary.Name = summary.ID
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = s.now().UTC()
	}
	summary.EventCount = len(trace.Events)
	for i, evt := range trace.Events {
		if evt.Position != i {
			return storage.TraceSummary{}, fmt.Errorf("event %d has position %d", i, evt.Position)
		}
		if !evt.Kind.Valid() {
			return storage.TraceSummary{}, fmt.Errorf("event %d has invalid kind %d", i, int(evt.Kind))
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.TraceSummary{}, fmt.Errorf("begin save trace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trace_events WHERE trace_id = ?`, summary.ID); err != nil {
		return storage.TraceSummary{}, fmt.Errorf("clear trace events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO traces (id, name, grammar, event_count, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	grammar = excluded.grammar,
	event_count = excluded.event_count
`,
		summary.ID,
		summary.Name,
		summary.Grammar,
		summary.EventCount,
		summary.CreatedAt.UTC().UnixMilli(),
	); err != nil {
		return storage.TraceSummary{}, fmt.Errorf("save trace: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO trace_events (
	trace_id,
	position,
	kind,
	consume_kind,
	token_index,
	token_type,
	token_channel,
	token_text,
	token_line,
	token_char,
	lookahead,
	grammar,
	rule,
	backtrack,
	successful,
	line,
	char_in_line,
	exception
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return storage.TraceSummary{}, fmt.Errorf("prepare trace events: %w", err)
	}
	defer stmt.Close()

	for _, evt := range trace.Events {
		if _, err := stmt.ExecContext(ctx,
			summary.ID,
			evt.Position,
			evt.Kind.Name(),
			evt.Consume.String(),
			evt.Token.Index,
			evt.Token.Type,
			evt.Token.Channel,
			evt.Token.Text,
			evt.Token.Line,
			evt.Token.CharInLine,
			evt.Lookahead,
			evt.Grammar,
			evt.Rule,
			evt.Backtrack,
			evt.Successful,
			evt.Line,
			evt.CharInLine,
			evt.Exception,
		); err != nil {
			return storage.TraceSummary{}, fmt.Errorf("save trace event %d: %w", evt.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.TraceSummary{}, fmt.Errorf("commit save trace: %w", err)
	}
	return summary, nil
}

// GetTrace loads a trace with its events.
func (s *Store) GetTrace(ctx context.Context, traceID string) (storage.Trace, error) {
	if err := ctx.Err(); err != nil {
		return storage.Trace{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Trace{}, fmt.Errorf("storage is not configured")
	}
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return storage.Trace{}, fmt.Errorf("trace id is required")
	}

	var trace storage.Trace
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, grammar, event_count, created_at
FROM traces
WHERE id = ?
`, traceID).Scan(
		&trace.ID,
		&trace.Name,
		&trace.Grammar,
		&trace.EventCount,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Trace{}, storage.ErrNotFound
		}
		return storage.Trace{}, fmt.Errorf("get trace: %w", err)
	}
	trace.CreatedAt = time.UnixMilli(createdAt).UTC()

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	position,
	kind,
	consume_kind,
	token_index,
	token_type,
	token_channel,
	token_text,
	token_line,
	token_char,
	lookahead,
	grammar,
	rule,
	backtrack,
	successful,
	line,
	char_in_line,
	exception
FROM trace_events
WHERE trace_id = ?
ORDER BY position ASC
`, traceID)
	if err != nil {
		return storage.Trace{}, fmt.Errorf("list trace events: %w", err)
	}
	defer rows.Close()

	trace.Events = make([]event.Event, 0, trace.EventCount)
	for rows.Next() {
		var evt event.Event
		var kind, consume string
		if err := rows.Scan(
			&evt.Position,
			&kind,
			&consume,
			&evt.Token.Index,
			&evt.Token.Type,
			&evt.Token.Channel,
			&evt.Token.Text,
			&evt.Token.Line,
			&evt.Token.CharInLine,
			&evt.Lookahead,
			&evt.Grammar,
			&evt.Rule,
			&evt.Backtrack,
			&evt.Successful,
			&evt.Line,
			&evt.CharInLine,
			&evt.Exception,
		); err != nil {
			return storage.Trace{}, fmt.Errorf("scan trace event: %w", err)
		}
		if evt.Kind, err = event.ParseKind(kind); err != nil {
			return storage.Trace{}, fmt.Errorf("trace event %d: %w", evt.Position, err)
		}
		if evt.Consume, err = event.ParseConsumeKind(consume); err != nil {
			return storage.Trace{}, fmt.Errorf("trace event %d: %w", evt.Position, err)
		}
		trace.Events = append(trace.Events, evt)
	}
	if err := rows.Err(); err != nil {
		return storage.Trace{}, fmt.Errorf("iterate trace events: %w", err)
	}
	return trace, nil
}

// ListTraces lists newest-first trace summaries.
func (s *Store) ListTraces(ctx context.Context, limit int) ([]storage.TraceSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, grammar, event_count, created_at
FROM traces
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	summaries := make([]storage.TraceSummary, 0, limit)
	for rows.Next() {
		var summary storage.TraceSummary
		var createdAt int64
		if err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&summary.Grammar,
			&summary.EventCount,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		summary.CreatedAt = time.UnixMilli(createdAt).UTC()
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}
	return summaries, nil
}

// DeleteTrace removes a trace and its events.
func (s *Store) DeleteTrace(ctx context.Context, traceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return fmt.Errorf("trace id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete trace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trace_events WHERE trace_id = ?`, traceID); err != nil {
		return fmt.Errorf("delete trace events: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM traces WHERE id = ?`, traceID)
	if err != nil {
		return fmt.Errorf("delete trace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete trace: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete trace: %w", err)
	}
	return nil
}

var _ storage.TraceStore = (*Store)(nil)
