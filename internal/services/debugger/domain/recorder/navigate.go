package recorder

import (
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/breakpoint"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/inputtrace"
)

// StepForward applies events until one satisfies mask, inclusive, or the end
// of the recorded trace is reached. A nil mask uses the recorder mask. It
// returns false when nothing moved or the session cannot navigate.
func (r *Recorder) StepForward(mask breakpoint.Matcher) bool {
	if !r.beginNav() {
		return false
	}
	defer r.unlockNav()
	return r.stepForwardLocked(r.matcher(mask))
}

// StepBackward moves back until the current event satisfies mask or the
// beginning is reached. A nil mask uses the recorder mask.
func (r *Recorder) StepBackward(mask breakpoint.Matcher) bool {
	if !r.beginNav() {
		return false
	}
	defer r.unlockNav()

	mask = r.matcher(mask)
	if r.p == 0 {
		return false
	}
	target := r.p - 1
	var stoppedOn event.Kind
	for target > 0 {
		evt, err := r.log.Get(target - 1)
		if err != nil {
			return false
		}
		if mask.ShouldBreak(evt) {
			stoppedOn = evt.Kind
			break
		}
		target--
	}
	r.rewindLocked(target)
	r.breakLocked(stoppedOn)
	r.notifyCurrentLocked()
	return true
}

// StepOver steps forward; when the current event enters a rule the whole
// invocation is skipped first, nested invocations included.
func (r *Recorder) StepOver() bool {
	if !r.beginNav() {
		return false
	}
	defer r.unlockNav()

	if r.p == 0 {
		return r.stepForwardLocked(r.mask)
	}
	current, err := r.log.Get(r.p - 1)
	if err != nil || current.Kind != event.KindEnterRule {
		return r.stepForwardLocked(r.mask)
	}

	r.setRunMask(r.mask)
	length := r.log.Len()
	depth := 1
	for depth > 0 && r.p < length {
		if r.cancel.Load() {
			return true
		}
		evt, err := r.log.Get(r.p)
		if err != nil {
			return true
		}
		r.applyLocked(evt, true)
		switch evt.Kind {
		case event.KindEnterRule:
			depth++
		case event.KindExitRule:
			depth--
		case event.KindLocation, event.KindConsumeToken, event.KindLookahead,
			event.KindBacktrackStart, event.KindBacktrackEnd,
			event.KindRecognitionException, event.KindTerminate:
		}
	}
	if depth > 0 {
		r.reachEndLocked()
		return true
	}
	r.stepForwardLocked(r.mask)
	return true
}

// FastForward applies every recorded event ignoring breakpoints. Live events
// that follow are applied without breaking until the next forward command.
func (r *Recorder) FastForward() bool {
	if !r.beginNav() {
		return false
	}
	defer r.unlockNav()
	return r.stepForwardLocked(breakpoint.Never)
}

// GoToStart rewinds to the beginning of the trace.
func (r *Recorder) GoToStart() bool {
	if !r.beginNav() {
		return false
	}
	defer r.unlockNav()

	moved := r.p > 0
	r.rewindLocked(0)
	r.breakLocked(0)
	return moved
}

// GoToEnd applies every recorded event in bulk.
func (r *Recorder) GoToEnd() bool {
	if !r.beginNav() {
		return false
	}
	defer r.unlockNav()

	r.setRunMask(breakpoint.Never)
	length := r.log.Len()
	moved := r.p < length
	if !r.replayLocked(length) {
		return moved
	}
	r.notifyCurrentLocked()
	r.reachEndLocked()
	return moved
}

func (r *Recorder) matcher(mask breakpoint.Matcher) breakpoint.Matcher {
	if mask == nil {
		return r.mask
	}
	return mask
}

// beginNav acquires navMu when the session can navigate.
func (r *Recorder) beginNav() bool {
	r.navMu.Lock()
	r.mu.Lock()
	alive := r.status.Alive()
	r.mu.Unlock()
	if !alive {
		r.navMu.Unlock()
		return false
	}
	return true
}

// unlockNav drains live events appended while navMu was held, then releases it.
func (r *Recorder) unlockNav() {
	for {
		r.pending.Store(false)
		r.catchUpLocked()
		r.settleLocked()
		r.navMu.Unlock()
		if !r.pending.Load() || !r.navMu.TryLock() {
			return
		}
	}
}

// schedule runs live catch-up now, or hands it to the current navMu holder.
func (r *Recorder) schedule() {
	r.pending.Store(true)
	if !r.navMu.TryLock() {
		return
	}
	r.unlockNav()
}

// catchUpLocked follows the live end of the trace while RUNNING.
func (r *Recorder) catchUpLocked() {
	for !r.cancel.Load() {
		r.mu.Lock()
		running := r.status == StatusRunning && r.p < r.log.Len()
		mask := r.runMask
		r.mu.Unlock()
		if !running {
			return
		}
		evt, err := r.log.Get(r.p)
		if err != nil {
			return
		}
		r.applyLocked(evt, true)
		if mask.ShouldBreak(evt) {
			r.breakLocked(evt.Kind)
			return
		}
	}
}

// settleLocked stops a terminated live session whose playback reached the end.
func (r *Recorder) settleLocked() {
	r.mu.Lock()
	done := r.terminated && !r.offline && r.p == r.log.Len() &&
		(r.status == StatusRunning || r.status == StatusLaunching)
	if !done {
		r.mu.Unlock()
		return
	}
	var changes []Status
	r.moveLocked(&changes, StatusStopping, 0)
	r.moveLocked(&changes, StatusStopped, 0)
	r.mu.Unlock()
	r.notifyStatus(changes)
}

func (r *Recorder) stepForwardLocked(mask breakpoint.Matcher) bool {
	r.setRunMask(mask)
	length := r.log.Len()
	moved := false
	for r.p < length {
		if r.cancel.Load() {
			return moved
		}
		evt, err := r.log.Get(r.p)
		if err != nil {
			return moved
		}
		r.applyLocked(evt, true)
		moved = true
		if mask.ShouldBreak(evt) {
			r.breakLocked(evt.Kind)
			return true
		}
	}
	r.reachEndLocked()
	return moved
}

// reachEndLocked leaves BREAK at the end of the trace: a live session resumes
// following new events, an offline replay stays halted.
func (r *Recorder) reachEndLocked() {
	r.mu.Lock()
	if !r.status.Alive() {
		r.mu.Unlock()
		return
	}
	var changes []Status
	if r.offline {
		r.moveLocked(&changes, StatusBreak, 0)
	} else {
		r.moveLocked(&changes, StatusRunning, 0)
	}
	r.mu.Unlock()
	r.notifyStatus(changes)
}

func (r *Recorder) breakLocked(stoppedOn event.Kind) {
	r.mu.Lock()
	if !r.status.Alive() {
		r.mu.Unlock()
		return
	}
	var changes []Status
	r.moveLocked(&changes, StatusBreak, stoppedOn)
	if len(changes) == 0 {
		// a new break on the same kind is still reported
		changes = append(changes, StatusBreak)
	}
	r.mu.Unlock()
	r.notifyStatus(changes)
}

func (r *Recorder) setRunMask(mask breakpoint.Matcher) {
	r.mu.Lock()
	r.runMask = mask
	r.mu.Unlock()
}

func (r *Recorder) setCursor(p int) {
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
}

// applyLocked integrates the event at the cursor and advances it.
func (r *Recorder) applyLocked(evt event.Event, notify bool) {
	r.history = append(r.history, r.model.Mark())
	change := r.model.ApplyForward(evt)
	r.setCursor(r.p + 1)
	if !notify {
		return
	}
	if change.Touched {
		r.observer.OnSpanHighlighted(change.TokenIndex, change.Attribute)
	}
	if change.Located {
		r.observer.OnLocationResolved(change.Line, change.CharInLine)
	}
}

// replayLocked applies events up to position to without notifications. It
// returns false when cancelled.
func (r *Recorder) replayLocked(to int) bool {
	for r.p < to {
		if r.cancel.Load() {
			return false
		}
		evt, err := r.log.Get(r.p)
		if err != nil {
			return false
		}
		r.applyLocked(evt, false)
	}
	return true
}

// rewindLocked rebuilds the model at cursor target < p.
//
// In persistence mode the spans touched by the undone events are re-tagged
// from the earliest one and the events since its first touch are replayed.
// Once persistence is broken the buffer is truncated to its recorded length,
// or rebuilt from the beginning when the target precedes the break.
func (r *Recorder) rewindLocked(target int) {
	if target >= r.p {
		return
	}
	if target == 0 {
		r.model.ResetAll()
		r.history = r.history[:0]
		r.setCursor(0)
		return
	}

	if brokenAt, broken := r.model.BrokenAt(); broken {
		if target > brokenAt {
			mark := r.history[target]
			r.model.RewindTo(mark.Length)
			r.model.Restore(mark)
			r.history = r.history[:target]
			r.setCursor(target)
			return
		}
		r.model.ResetAll()
		r.history = r.history[:0]
		r.setCursor(0)
		r.replayLocked(target)
		return
	}

	undone, err := r.log.Slice(target, r.p)
	if err != nil {
		return
	}
	first, ok := r.earliestSpan(undone)
	if !ok {
		r.model.Restore(r.history[target])
		r.history = r.history[:target]
		r.setCursor(target)
		return
	}

	r.model.RewindTo(first.Start)
	if first.Position >= target {
		r.model.Restore(r.history[target])
		r.history = r.history[:target]
		r.setCursor(target)
		return
	}
	r.model.Restore(r.history[first.Position])
	r.history = r.history[:first.Position]
	r.setCursor(first.Position)
	r.replayLocked(target)
}

// earliestSpan returns the lowest positioned span touched by events.
func (r *Recorder) earliestSpan(events []event.Event) (inputtrace.Span, bool) {
	var first inputtrace.Span
	found := false
	for _, evt := range events {
		if !evt.HasToken() {
			continue
		}
		span, ok := r.model.Span(evt.Token.Index)
		if !ok {
			continue
		}
		if !found || span.Start < first.Start {
			first = span
			found = true
		}
	}
	return first, found
}

// notifyCurrentLocked reports the state of the current event after a jump.
func (r *Recorder) notifyCurrentLocked() {
	if r.p > 0 {
		if evt, err := r.log.Get(r.p - 1); err == nil && evt.HasToken() {
			attr := inputtrace.Lookahead
			if evt.Kind == event.KindConsumeToken {
				attr = inputtrace.AttributeForConsume(evt.Consume)
			}
			r.observer.OnSpanHighlighted(evt.Token.Index, attr)
		}
	}
	line, charInLine := r.model.Location()
	r.observer.OnLocationResolved(line, charInLine)
}
