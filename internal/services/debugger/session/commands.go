package session

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/JohnPiwinski/antlrworks/internal/platform/errors"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/breakpoint"
)

// StepForward applies events until one matches breakOn, or the session mask
// when breakOn is empty.
func (s *Service) StepForward(ctx context.Context, breakOn string) (Result, error) {
	mask, err := s.breakOn(breakOn)
	if err != nil {
		return Result{}, err
	}
	return s.navigate(ctx, "session.StepForward", func() bool {
		return s.recorder.StepForward(mask)
	})
}

// StepBackward undoes events until the current one matches breakOn, or the
// session mask when breakOn is empty.
func (s *Service) StepBackward(ctx context.Context, breakOn string) (Result, error) {
	mask, err := s.breakOn(breakOn)
	if err != nil {
		return Result{}, err
	}
	return s.navigate(ctx, "session.StepBackward", func() bool {
		return s.recorder.StepBackward(mask)
	})
}

// StepOver steps past the rule entered by the current event.
func (s *Service) StepOver(ctx context.Context) (Result, error) {
	return s.navigate(ctx, "session.StepOver", s.recorder.StepOver)
}

// FastForward plays to the end of the recorded trace without breaking.
func (s *Service) FastForward(ctx context.Context) (Result, error) {
	return s.navigate(ctx, "session.FastForward", s.recorder.FastForward)
}

// GoToStart rewinds to the beginning of the trace.
func (s *Service) GoToStart(ctx context.Context) (Result, error) {
	return s.navigate(ctx, "session.GoToStart", s.recorder.GoToStart)
}

// GoToEnd plays to the end of the recorded trace.
func (s *Service) GoToEnd(ctx context.Context) (Result, error) {
	return s.navigate(ctx, "session.GoToEnd", s.recorder.GoToEnd)
}

func (s *Service) navigate(ctx context.Context, name string, move func() bool) (result Result, err error) {
	_, span := s.start(ctx, name)
	defer func() { finish(span, err) }()

	// The recorder ignores navigation while stopped.
	changed := move()
	snapshot := s.Snapshot()
	span.SetAttributes(
		attribute.Bool("session.changed", changed),
		attribute.Int("session.position", snapshot.Position),
	)
	return Result{Changed: changed, Snapshot: snapshot}, nil
}

// ToggleBreakKind flips a breakpoint kind selector such as "consume" or "all"
// and reports whether it is now set.
func (s *Service) ToggleBreakKind(ctx context.Context, selector string) (enabled bool, err error) {
	_, span := s.start(ctx, "session.ToggleBreakKind")
	defer func() { finish(span, err) }()

	enabled, err = s.mask.ToggleSelector(selector)
	if err != nil {
		return false, apperrors.WrapWithMetadata(apperrors.CodeBreakSelectorInvalid, "toggle break kind", map[string]string{"Selector": selector}, err)
	}
	s.logf("break on %s: %t (mask %s)", strings.TrimSpace(selector), enabled, s.mask)
	return enabled, nil
}

// ToggleSpanBreakpoint flips the input breakpoint on a token index and
// reports whether it is now set.
func (s *Service) ToggleSpanBreakpoint(ctx context.Context, tokenIndex int) (enabled bool, err error) {
	_, span := s.start(ctx, "session.ToggleSpanBreakpoint")
	defer func() { finish(span, err) }()

	if tokenIndex < 0 {
		return false, apperrors.WithMetadata(apperrors.CodeArgumentInvalid, "token index must not be negative", map[string]string{"Field": "token_index"})
	}
	enabled = s.recorder.ToggleSpanBreakpoint(tokenIndex)
	s.logf("break on token %d: %t", tokenIndex, enabled)
	return enabled, nil
}

// SetCondition installs a Lua breakpoint condition; an empty source removes it.
func (s *Service) SetCondition(ctx context.Context, source string) (err error) {
	_, span := s.start(ctx, "session.SetCondition")
	defer func() { finish(span, err) }()

	if strings.TrimSpace(source) == "" {
		s.mask.SetCondition(nil)
		s.logf("break condition cleared")
		return nil
	}
	return s.installCondition(source)
}

func (s *Service) installCondition(source string) error {
	condition, err := breakpoint.NewCondition(source, breakpoint.WithErrorHandler(func(err error) {
		s.logf("break condition: %v", err)
	}))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConditionInvalid, "compile break condition", err)
	}
	s.mask.SetCondition(condition)
	s.logf("break condition set: %s", strconv.Quote(condition.Source()))
	return nil
}

// breakOn returns nil for an empty list so the recorder uses its mask. Span
// breakpoints and the condition of the session mask still apply otherwise.
func (s *Service) breakOn(breakOn string) (breakpoint.Matcher, error) {
	if strings.TrimSpace(breakOn) == "" {
		return nil, nil
	}
	mask, err := s.mask.WithSelectors(breakOn)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeBreakSelectorInvalid, "parse break mask", map[string]string{"Selector": breakOn}, err)
	}
	return mask, nil
}
