// Package recorder replays a recognizer trace in both directions.
//
// A Recorder owns the event log of one session and the input buffer model
// reconstructed from it. Its cursor p counts the events applied to the model:
// the current event is the one at trace position p-1, p == 0 is the beginning
// and p == Len() the end. The recorder is a pure function of the append-only
// log and p, so every position can be revisited deterministically.
//
// Locking: mu guards status, cursor and session flags and is never held while
// the model changes. navMu serializes everything that moves the cursor or
// mutates the model. Appends never wait for navMu; when it is busy they leave
// a pending flag that the holder drains before releasing it.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/breakpoint"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/eventlog"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/inputtrace"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/player"
)

var (
	// ErrSessionTerminated reports that the recognizer went away unexpectedly.
	ErrSessionTerminated = errors.New("debug session terminated")
	// ErrNotRecording rejects events when no live session accepts them.
	ErrNotRecording = errors.New("recorder is not recording")
	// ErrSessionActive rejects starting a session over an active one.
	ErrSessionActive = errors.New("debug session is active")
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithObserver registers the observer notified of side effects.
func WithObserver(observer Observer) Option {
	return func(r *Recorder) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithMask sets the breakpoint mask used by live playback and StepOver.
func WithMask(mask *breakpoint.Mask) Option {
	return func(r *Recorder) {
		if mask != nil {
			r.mask = mask
		}
	}
}

// Recorder is the replay engine of one debug session at a time.
type Recorder struct {
	log      *eventlog.Log
	model    *inputtrace.Model
	mask     *breakpoint.Mask
	observer Observer

	mu         sync.Mutex
	status     Status
	p          int
	stoppedOn  event.Kind
	terminated bool
	offline    bool
	// runMask is the mask of the last forward command, applied to live events.
	runMask breakpoint.Matcher

	navMu sync.Mutex
	// history[i] is the model mark taken before applying the event at i.
	history []inputtrace.Mark
	pending atomic.Bool
	cancel  atomic.Bool
}

// New creates a stopped recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		log:      eventlog.New(),
		model:    inputtrace.New(),
		mask:     breakpoint.NewMask(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.runMask = r.mask
	return r
}

// Launch starts a live session: the log and the model are reset and the
// recorder waits for the first event. It returns false unless STOPPED.
func (r *Recorder) Launch() bool {
	r.navMu.Lock()
	defer r.navMu.Unlock()

	r.mu.Lock()
	if r.status != StatusStopped {
		r.mu.Unlock()
		return false
	}
	r.resetLocked()
	var changes []Status
	r.moveLocked(&changes, StatusLaunching, 0)
	r.mu.Unlock()

	r.notifyStatus(changes)
	return true
}

// Load starts an offline replay of a stored trace. The recorder starts in
// BREAK at the beginning and stays in BREAK at the end.
func (r *Recorder) Load(events []event.Event) error {
	r.navMu.Lock()
	defer r.navMu.Unlock()

	r.mu.Lock()
	if r.status != StatusStopped {
		r.mu.Unlock()
		return ErrSessionActive
	}
	r.resetLocked()
	for _, evt := range events {
		if _, err := r.log.Append(evt); err != nil {
			r.log.Reset()
			r.mu.Unlock()
			return fmt.Errorf("load trace: %w", err)
		}
	}
	r.offline = true
	r.terminated = true
	var changes []Status
	r.moveLocked(&changes, StatusBreak, 0)
	r.mu.Unlock()

	r.notifyStatus(changes)
	return nil
}

func (r *Recorder) resetLocked() {
	r.log.Reset()
	r.model.Reset()
	r.history = nil
	r.p = 0
	r.stoppedOn = 0
	r.terminated = false
	r.offline = false
	r.runMask = r.mask
	r.pending.Store(false)
	r.cancel.Store(false)
}

// Append records one live event. While RUNNING at the end of the trace the
// event is applied immediately and may break. A sequence violation is fatal
// to the session.
func (r *Recorder) Append(evt event.Event) error {
	r.mu.Lock()
	if r.offline || (r.status != StatusLaunching && r.status != StatusRunning && r.status != StatusBreak) {
		r.mu.Unlock()
		return ErrNotRecording
	}
	if _, err := r.log.Append(evt); err != nil {
		r.mu.Unlock()
		r.fail(err)
		return err
	}
	var changes []Status
	if r.status == StatusLaunching {
		r.moveLocked(&changes, StatusRunning, 0)
	}
	if evt.Kind == event.KindTerminate {
		r.terminated = true
	}
	live := r.status == StatusRunning
	r.mu.Unlock()

	r.notifyStatus(changes)
	if live {
		r.schedule()
	}
	return nil
}

// Terminated marks a clean end of the live trace. The session stops once
// playback reaches the end outside BREAK.
func (r *Recorder) Terminated() {
	r.mu.Lock()
	if r.offline || r.status == StatusStopped || r.status == StatusStopping {
		r.mu.Unlock()
		return
	}
	r.terminated = true
	r.mu.Unlock()
	r.schedule()
}

// Disconnected reports that the transport ended without a clean termination.
// A LAUNCHING or RUNNING session is stopped; a session in BREAK keeps its
// trace navigable.
func (r *Recorder) Disconnected(cause error) {
	err := ErrSessionTerminated
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrSessionTerminated, cause)
	}

	r.mu.Lock()
	switch r.status {
	case StatusLaunching, StatusRunning:
		r.mu.Unlock()
		r.fail(err)
	case StatusBreak:
		if r.offline || r.terminated {
			r.mu.Unlock()
			return
		}
		r.terminated = true
		r.mu.Unlock()
		r.observer.OnSessionTerminated(err)
	case StatusStopped, StatusStopping:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
	}
}

// Stop ends the session. An in-flight navigation is cancelled at the next
// event boundary. It returns false when already stopped.
func (r *Recorder) Stop() bool {
	return r.shutdown(nil)
}

func (r *Recorder) fail(err error) {
	r.shutdown(err)
}

// shutdown walks STOPPING then STOPPED. A non-nil err is reported through
// OnSessionTerminated.
func (r *Recorder) shutdown(err error) bool {
	r.cancel.Store(true)

	r.mu.Lock()
	if r.status == StatusStopped || r.status == StatusStopping {
		r.mu.Unlock()
		return false
	}
	var changes []Status
	r.terminated = true
	r.moveLocked(&changes, StatusStopping, 0)
	r.mu.Unlock()
	r.notifyStatus(changes)

	r.navMu.Lock()
	r.mu.Lock()
	changes = nil
	r.moveLocked(&changes, StatusStopped, 0)
	r.mu.Unlock()
	r.navMu.Unlock()

	r.notifyStatus(changes)
	if err != nil {
		r.observer.OnSessionTerminated(err)
	}
	return true
}

// Status returns the session status.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// StoppedOn returns the kind of the event playback broke on, zero if none.
func (r *Recorder) StoppedOn() event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stoppedOn
}

// Position returns the trace position of the current event, -1 at the beginning.
func (r *Recorder) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.p - 1
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	return r.log.Len()
}

// IsAtBeginning reports whether no event is applied.
func (r *Recorder) IsAtBeginning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.p == 0
}

// IsAtEnd reports whether every recorded event is applied.
func (r *Recorder) IsAtEnd() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.p == r.log.Len()
}

// IsAlive reports whether the session is RUNNING or in BREAK.
func (r *Recorder) IsAlive() bool {
	return r.Status().Alive()
}

// Offline reports whether the session replays a stored trace.
func (r *Recorder) Offline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offline
}

// Breakpoints returns the mask used by live playback and StepOver.
func (r *Recorder) Breakpoints() *breakpoint.Mask {
	return r.mask
}

// ToggleBreakpointKind flips a kind in the breakpoint mask.
func (r *Recorder) ToggleBreakpointKind(kind event.Kind) bool {
	return r.mask.Toggle(kind)
}

// ToggleSpanBreakpoint flips the input breakpoint on a token index.
func (r *Recorder) ToggleSpanBreakpoint(tokenIndex int) bool {
	return r.mask.ToggleSpan(tokenIndex)
}

// Events returns a copy of the recorded trace.
func (r *Recorder) Events() []event.Event {
	events, _ := r.log.Slice(0, r.log.Len())
	return events
}

// PlayerContext derives the parser context at the cursor.
func (r *Recorder) PlayerContext() player.Context {
	r.mu.Lock()
	p, stoppedOn, status := r.p, r.stoppedOn, r.status
	r.mu.Unlock()

	events, err := r.log.Slice(0, p)
	if err != nil {
		events = nil
	}
	ctx := player.Compute(events)
	if status == StatusBreak {
		ctx.StoppedOn = stoppedOn
	}
	return ctx
}

// Controls reports which commands are currently meaningful.
func (r *Recorder) Controls() Controls {
	r.mu.Lock()
	defer r.mu.Unlock()
	alive := r.status.Alive()
	atBeginning := r.p == 0
	atEnd := r.p == r.log.Len()
	return Controls{
		Stop:        r.status != StatusStopped,
		Backward:    alive && !atBeginning,
		Forward:     alive && !atEnd,
		StepOver:    alive && !atEnd,
		FastForward: alive && !atEnd,
		GoToStart:   alive && !atBeginning,
		GoToEnd:     alive && !atEnd,
	}
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	Status     Status
	StoppedOn  event.Kind
	Position   int
	Length     int
	Terminated bool
	Offline    bool
	Context    player.Context
	Input      inputtrace.Snapshot
	Runs       []inputtrace.Run
	Controls   Controls
	Breaks     []string
	BreakSpans []int
	Condition  string
}

// Description renders the status line of the snapshot.
func (s Snapshot) Description() string {
	return Describe(s.Status, s.StoppedOn, s.Context)
}

// Snapshot waits for in-flight navigation and captures the whole session state.
func (r *Recorder) Snapshot() Snapshot {
	r.navMu.Lock()
	defer r.unlockNav()

	r.mu.Lock()
	snapshot := Snapshot{
		Status:     r.status,
		StoppedOn:  r.stoppedOn,
		Position:   r.p - 1,
		Length:     r.log.Len(),
		Terminated: r.terminated,
		Offline:    r.offline,
	}
	r.mu.Unlock()

	snapshot.Context = r.PlayerContext()
	snapshot.Controls = r.Controls()
	snapshot.Input = r.model.Snapshot()
	snapshot.Runs = r.model.Runs()
	snapshot.Breaks = r.mask.Selectors()
	snapshot.BreakSpans = r.mask.Spans()
	snapshot.Condition = r.mask.Condition()
	return snapshot
}

// Model exposes the reconstructed input buffer for read access.
func (r *Recorder) Model() *inputtrace.Model {
	return r.model
}

// moveLocked records a status change; changes collects notifications to fire
// once mu is released.
func (r *Recorder) moveLocked(changes *[]Status, status Status, stoppedOn event.Kind) {
	if r.status == status && r.stoppedOn == stoppedOn {
		return
	}
	r.status = status
	r.stoppedOn = stoppedOn
	*changes = append(*changes, status)
}

func (r *Recorder) notifyStatus(changes []Status) {
	for _, status := range changes {
		r.observer.OnStatusChanged(status)
	}
}
