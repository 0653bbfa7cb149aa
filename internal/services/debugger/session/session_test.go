package session

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/JohnPiwinski/antlrworks/internal/platform/errors"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event/eventtest"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/inputtrace"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/recorder"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/storage/sqlite"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/transport/transporttest"
)

func sampleEvents() []event.Event {
	return eventtest.Sequence(
		eventtest.Enter("prog"),
		eventtest.Location(1, 0),
		eventtest.Consume(0, "a"),
		eventtest.Consume(1, "b"),
		eventtest.Exit("prog"),
		eventtest.Terminate(),
	)
}

func quiet(string, ...any) {}

type statusObserver struct {
	recorder.NopObserver
	mu       sync.Mutex
	statuses []recorder.Status
}

func (o *statusObserver) OnStatusChanged(status recorder.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *statusObserver) seen(status recorder.Status) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.statuses {
		if s == status {
			return true
		}
	}
	return false
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newService(t *testing.T, store storage.TraceStore, cfg Config, opts ...Option) *Service {
	t.Helper()
	cfg.Logf = quiet
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	svc, err := New(store, cfg, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func launchRecorded(t *testing.T, svc *Service, script transporttest.Script) {
	t.Helper()
	recognizer := transporttest.Serve(t, script)
	if _, err := svc.Launch(context.Background(), recognizer.Addr()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	eventually(t, "recorded events", func() bool { return svc.Recorder().Len() == len(script.Events) })
}

func seedTrace(t *testing.T, store storage.TraceStore) string {
	t.Helper()
	summary, err := store.SaveTrace(context.Background(), storage.Trace{
		TraceSummary: storage.TraceSummary{Name: "seed", Grammar: "Expr.g"},
		Events:       sampleEvents(),
	})
	if err != nil {
		t.Fatalf("seed trace: %v", err)
	}
	return summary.ID
}

func TestLaunchBreaksOnFirstConsume(t *testing.T) {
	observer := &statusObserver{}
	svc := newService(t, nil, Config{}, WithObserver(observer))
	launchRecorded(t, svc, transporttest.Script{Grammar: "Expr.g", Events: sampleEvents()})

	snapshot := svc.Snapshot()
	if snapshot.Status != recorder.StatusBreak || snapshot.Position != 2 {
		t.Fatalf("status = %s position = %d, want break at 2", snapshot.Status, snapshot.Position)
	}
	if snapshot.Description != "Break on Consume" {
		t.Fatalf("description = %q", snapshot.Description)
	}
	if snapshot.Grammar != "Expr.g" || snapshot.Recognizer == "" {
		t.Fatalf("grammar = %q recognizer = %q", snapshot.Grammar, snapshot.Recognizer)
	}
	if snapshot.Input.Text != "a" {
		t.Fatalf("input = %q, want %q", snapshot.Input.Text, "a")
	}

	result, err := svc.StepForward(context.Background(), "")
	if err != nil {
		t.Fatalf("step forward: %v", err)
	}
	if !result.Changed || result.Snapshot.Position != 3 || result.Snapshot.Input.Text != "ab" {
		t.Fatalf("step forward = %+v", result)
	}

	result, err = svc.FastForward(context.Background())
	if err != nil {
		t.Fatalf("fast forward: %v", err)
	}
	if result.Snapshot.Status != recorder.StatusStopped {
		t.Fatalf("status = %s, want stopped after playing a terminated trace", result.Snapshot.Status)
	}
	if !observer.seen(recorder.StatusRunning) || !observer.seen(recorder.StatusStopped) {
		t.Fatalf("statuses = %v", observer.statuses)
	}
}

func TestAutosaveStoresFinishedTrace(t *testing.T) {
	store := openStore(t)
	svc := newService(t, store, Config{Autosave: true})
	launchRecorded(t, svc, transporttest.Script{Grammar: "Expr.g", Events: sampleEvents()})

	if _, err := svc.FastForward(context.Background()); err != nil {
		t.Fatalf("fast forward: %v", err)
	}
	svc.Close()

	summaries, err := store.ListTraces(context.Background(), 10)
	if err != nil {
		t.Fatalf("list traces: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1 autosaved trace", len(summaries))
	}
	if summaries[0].Grammar != "Expr.g" || summaries[0].EventCount != len(sampleEvents()) {
		t.Fatalf("summary = %+v", summaries[0])
	}
}

func TestLaunchFailsWhenRecognizerMissing(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	svc := newService(t, nil, Config{ConnectTimeout: 200 * time.Millisecond})
	_, err = svc.Launch(context.Background(), addr)
	if !apperrors.IsCode(err, apperrors.CodeRecognizerUnavailable) {
		t.Fatalf("launch err = %v, want %s", err, apperrors.CodeRecognizerUnavailable)
	}
	if got := svc.Recorder().Status(); got != recorder.StatusStopped {
		t.Fatalf("status = %s, want stopped", got)
	}
}

func TestLaunchRejectsUnsupportedProtocol(t *testing.T) {
	recognizer := transporttest.Serve(t, transporttest.Script{Version: "3"})
	svc := newService(t, nil, Config{})
	if _, err := svc.Launch(context.Background(), recognizer.Addr()); !apperrors.IsCode(err, apperrors.CodeRecognizerProtocol) {
		t.Fatalf("launch err = %v, want %s", err, apperrors.CodeRecognizerProtocol)
	}
}

func TestStopWhileConnectingAbortsLaunch(t *testing.T) {
	gate := make(chan struct{})
	recognizer := transporttest.Serve(t, transporttest.Script{Gate: gate, Hold: true})
	svc := newService(t, nil, Config{})

	launchErr := make(chan error, 1)
	go func() {
		_, err := svc.Launch(context.Background(), recognizer.Addr())
		launchErr <- err
	}()
	eventually(t, "launching", func() bool { return svc.Recorder().Status() == recorder.StatusLaunching })

	stopped := make(chan Result, 1)
	go func() {
		result, _ := svc.Stop(context.Background())
		stopped <- result
	}()
	eventually(t, "stopped recorder", func() bool { return svc.Recorder().Status() == recorder.StatusStopped })
	close(gate)

	select {
	case err := <-launchErr:
		if !apperrors.IsCode(err, apperrors.CodeLaunchAborted) {
			t.Fatalf("launch err = %v, want %s", err, apperrors.CodeLaunchAborted)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("launch did not return")
	}
	select {
	case result := <-stopped:
		if !result.Changed || result.Snapshot.Status != recorder.StatusStopped {
			t.Fatalf("stop = changed %t status %s, want changed stopped", result.Changed, result.Snapshot.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	launchRecorded(t, svc, transporttest.Script{Events: sampleEvents()})
	if status := svc.Recorder().Status(); status != recorder.StatusBreak {
		t.Fatalf("relaunch status = %s, want break", status)
	}
}

func TestLaunchRequiresAddress(t *testing.T) {
	svc := newService(t, nil, Config{})
	if _, err := svc.Launch(context.Background(), " "); !apperrors.IsCode(err, apperrors.CodeArgumentInvalid) {
		t.Fatalf("launch err = %v, want %s", err, apperrors.CodeArgumentInvalid)
	}
}

func TestLaunchRejectsActiveSessionAndStops(t *testing.T) {
	svc := newService(t, nil, Config{})
	launchRecorded(t, svc, transporttest.Script{Events: sampleEvents()[:3], Hold: true})

	if _, err := svc.Launch(context.Background(), "127.0.0.1:1"); !apperrors.IsCode(err, apperrors.CodeSessionActive) {
		t.Fatalf("second launch err = %v, want %s", err, apperrors.CodeSessionActive)
	}

	result, err := svc.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !result.Changed || result.Snapshot.Status != recorder.StatusStopped {
		t.Fatalf("stop = %+v", result)
	}
	result, err = svc.Stop(context.Background())
	if err != nil || result.Changed {
		t.Fatalf("second stop = %+v, %v, want no-op", result, err)
	}
}

func TestNavigationWithoutSessionIsNoOp(t *testing.T) {
	svc := newService(t, nil, Config{})
	commands := map[string]func(context.Context) (Result, error){
		"step forward":  func(ctx context.Context) (Result, error) { return svc.StepForward(ctx, "") },
		"step backward": func(ctx context.Context) (Result, error) { return svc.StepBackward(ctx, "") },
		"step over":     svc.StepOver,
		"fast forward":  svc.FastForward,
		"go to start":   svc.GoToStart,
		"go to end":     svc.GoToEnd,
	}
	for name, command := range commands {
		result, err := command(context.Background())
		if err != nil {
			t.Fatalf("%s err = %v, want nil", name, err)
		}
		if result.Changed || result.Snapshot.Status != recorder.StatusStopped {
			t.Fatalf("%s = changed %t status %s, want unchanged stopped", name, result.Changed, result.Snapshot.Status)
		}
	}
}

func TestSaveThenReplayTrace(t *testing.T) {
	store := openStore(t)
	svc := newService(t, store, Config{})
	launchRecorded(t, svc, transporttest.Script{Grammar: "Expr.g", Events: sampleEvents()})

	summary, err := svc.SaveTrace(context.Background(), "run 1")
	if err != nil {
		t.Fatalf("save trace: %v", err)
	}
	if summary.Name != "run 1" || summary.Grammar != "Expr.g" || summary.EventCount != 6 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := svc.LoadTrace(context.Background(), summary.ID); !apperrors.IsCode(err, apperrors.CodeSessionActive) {
		t.Fatalf("load while active err = %v, want %s", err, apperrors.CodeSessionActive)
	}
	if _, err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	snapshot, err := svc.LoadTrace(context.Background(), summary.ID)
	if err != nil {
		t.Fatalf("load trace: %v", err)
	}
	if !snapshot.Offline || snapshot.Status != recorder.StatusBreak || snapshot.Position != -1 || snapshot.Length != 6 {
		t.Fatalf("loaded snapshot = %+v", snapshot.Snapshot)
	}
	if snapshot.TraceID != summary.ID || snapshot.Grammar != "Expr.g" || snapshot.Recognizer != "" {
		t.Fatalf("trace id = %q grammar = %q recognizer = %q", snapshot.TraceID, snapshot.Grammar, snapshot.Recognizer)
	}

	result, err := svc.StepForward(context.Background(), "")
	if err != nil || result.Snapshot.Position != 2 {
		t.Fatalf("step forward = %+v, %v, want position 2", result.Snapshot.Snapshot, err)
	}
	result, err = svc.GoToEnd(context.Background())
	if err != nil {
		t.Fatalf("go to end: %v", err)
	}
	if result.Snapshot.Status != recorder.StatusBreak || result.Snapshot.Position != 5 {
		t.Fatalf("offline end = %s at %d, want break at 5", result.Snapshot.Status, result.Snapshot.Position)
	}
	result, err = svc.GoToEnd(context.Background())
	if err != nil || result.Changed {
		t.Fatalf("second go to end = %+v, %v, want no-op", result.Changed, err)
	}
	result, err = svc.GoToStart(context.Background())
	if err != nil || result.Snapshot.Position != -1 || result.Snapshot.Input.Text != "" {
		t.Fatalf("go to start = %+v, %v", result.Snapshot.Snapshot, err)
	}
}

func TestTraceErrors(t *testing.T) {
	store := openStore(t)
	svc := newService(t, store, Config{})

	if _, err := svc.SaveTrace(context.Background(), "empty"); !apperrors.IsCode(err, apperrors.CodeSessionEmpty) {
		t.Fatalf("save empty err = %v, want %s", err, apperrors.CodeSessionEmpty)
	}
	if _, err := svc.LoadTrace(context.Background(), "missing"); !apperrors.IsCode(err, apperrors.CodeTraceNotFound) {
		t.Fatalf("load missing err = %v, want %s", err, apperrors.CodeTraceNotFound)
	}
	if _, err := svc.LoadTrace(context.Background(), ""); !apperrors.IsCode(err, apperrors.CodeArgumentInvalid) {
		t.Fatalf("load empty id err = %v, want %s", err, apperrors.CodeArgumentInvalid)
	}
	if err := svc.DeleteTrace(context.Background(), "missing"); !apperrors.IsCode(err, apperrors.CodeTraceNotFound) {
		t.Fatalf("delete missing err = %v, want %s", err, apperrors.CodeTraceNotFound)
	}

	unstored := newService(t, nil, Config{})
	if _, err := unstored.ListTraces(context.Background(), 5); !apperrors.IsCode(err, apperrors.CodeStorageNotConfigured) {
		t.Fatalf("list err = %v, want %s", err, apperrors.CodeStorageNotConfigured)
	}
}

func TestListAndDeleteTraces(t *testing.T) {
	store := openStore(t)
	svc := newService(t, store, Config{})
	for i := 0; i < 3; i++ {
		seedTrace(t, store)
	}

	summaries, err := svc.ListTraces(context.Background(), 0)
	if err != nil {
		t.Fatalf("list traces: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("summaries = %d, want 3 with the default page size", len(summaries))
	}
	if err := svc.DeleteTrace(context.Background(), summaries[0].ID); err != nil {
		t.Fatalf("delete trace: %v", err)
	}
	if summaries, _ = svc.ListTraces(context.Background(), 1); len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
}

func TestBreakpointControls(t *testing.T) {
	store := openStore(t)
	svc := newService(t, store, Config{})
	traceID := seedTrace(t, store)

	if _, err := svc.ToggleBreakKind(context.Background(), "bogus"); !apperrors.IsCode(err, apperrors.CodeBreakSelectorInvalid) {
		t.Fatalf("toggle err = %v, want %s", err, apperrors.CodeBreakSelectorInvalid)
	}
	if _, err := svc.ToggleSpanBreakpoint(context.Background(), -1); !apperrors.IsCode(err, apperrors.CodeArgumentInvalid) {
		t.Fatalf("toggle span err = %v, want %s", err, apperrors.CodeArgumentInvalid)
	}
	if err := svc.SetCondition(context.Background(), "kind =="); !apperrors.IsCode(err, apperrors.CodeConditionInvalid) {
		t.Fatalf("condition err = %v, want %s", err, apperrors.CodeConditionInvalid)
	}
	if err := svc.SetCondition(context.Background(), `text == "b"`); err != nil {
		t.Fatalf("set condition: %v", err)
	}
	if _, err := svc.LoadTrace(context.Background(), traceID); err != nil {
		t.Fatalf("load trace: %v", err)
	}

	result, err := svc.StepForward(context.Background(), "")
	if err != nil || result.Snapshot.Position != 3 {
		t.Fatalf("conditional step = %d, %v, want position 3", result.Snapshot.Position, err)
	}
	if result.Snapshot.Condition != `text == "b"` {
		t.Fatalf("condition = %q", result.Snapshot.Condition)
	}

	if err := svc.SetCondition(context.Background(), ""); err != nil {
		t.Fatalf("clear condition: %v", err)
	}
	enabled, err := svc.ToggleBreakKind(context.Background(), "exit_rule")
	if err != nil || !enabled {
		t.Fatalf("toggle exit = %t, %v", enabled, err)
	}
	result, err = svc.StepForward(context.Background(), "")
	if err != nil || result.Snapshot.Position != 4 || result.Snapshot.StoppedOn != event.KindExitRule {
		t.Fatalf("step = %+v, %v, want exit at 4", result.Snapshot.Snapshot, err)
	}

	enabled, err = svc.ToggleSpanBreakpoint(context.Background(), 0)
	if err != nil || !enabled {
		t.Fatalf("toggle span = %t, %v", enabled, err)
	}
	if spans := svc.Snapshot().BreakSpans; len(spans) != 1 || spans[0] != 0 {
		t.Fatalf("spans = %v", spans)
	}
}

func TestStepWithBreakOverride(t *testing.T) {
	store := openStore(t)
	svc := newService(t, store, Config{})
	if _, err := svc.LoadTrace(context.Background(), seedTrace(t, store)); err != nil {
		t.Fatalf("load trace: %v", err)
	}

	result, err := svc.StepForward(context.Background(), "location")
	if err != nil || result.Snapshot.Position != 1 {
		t.Fatalf("step to location = %d, %v", result.Snapshot.Position, err)
	}
	if _, err := svc.StepForward(context.Background(), "nonsense"); !apperrors.IsCode(err, apperrors.CodeBreakSelectorInvalid) {
		t.Fatalf("override err = %v, want %s", err, apperrors.CodeBreakSelectorInvalid)
	}
	if _, err := svc.GoToEnd(context.Background()); err != nil {
		t.Fatalf("go to end: %v", err)
	}
	result, err = svc.StepBackward(context.Background(), "enter_rule")
	if err != nil || result.Snapshot.Position != 0 {
		t.Fatalf("step back to enter = %d, %v", result.Snapshot.Position, err)
	}
	for _, span := range result.Snapshot.Input.Spans {
		if span.Attribute != inputtrace.NonConsumed {
			t.Fatalf("span %d = %s after rewinding before every consume", span.TokenIndex, span.Attribute)
		}
	}
}

func TestBreakOverrideHonorsSpanBreakpoints(t *testing.T) {
	store := openStore(t)
	svc := newService(t, store, Config{})
	if _, err := svc.LoadTrace(context.Background(), seedTrace(t, store)); err != nil {
		t.Fatalf("load trace: %v", err)
	}
	if enabled, err := svc.ToggleSpanBreakpoint(context.Background(), 0); err != nil || !enabled {
		t.Fatalf("toggle span = %t, %v", enabled, err)
	}

	result, err := svc.StepForward(context.Background(), "exit_rule")
	if err != nil {
		t.Fatalf("step forward: %v", err)
	}
	if result.Snapshot.Position != 2 || result.Snapshot.StoppedOn != event.KindConsumeToken {
		t.Fatalf("step = %s at %d, want consume at 2", result.Snapshot.StoppedOn, result.Snapshot.Position)
	}
	result, err = svc.StepForward(context.Background(), "exit_rule")
	if err != nil || result.Snapshot.Position != 4 {
		t.Fatalf("second step = %d, %v, want exit at 4", result.Snapshot.Position, err)
	}

	if _, err := svc.GoToEnd(context.Background()); err != nil {
		t.Fatalf("go to end: %v", err)
	}
	result, err = svc.StepBackward(context.Background(), "enter_rule")
	if err != nil || result.Snapshot.Position != 2 {
		t.Fatalf("step back = %d, %v, want span breakpoint at 2", result.Snapshot.Position, err)
	}
	if spans := svc.Snapshot().BreakSpans; len(spans) != 1 || spans[0] != 0 {
		t.Fatalf("session spans = %v, want [0]", spans)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(nil, Config{BreakOn: "consume,bogus"}); !apperrors.IsCode(err, apperrors.CodeBreakSelectorInvalid) {
		t.Fatalf("new err = %v, want %s", err, apperrors.CodeBreakSelectorInvalid)
	}
	if _, err := New(nil, Config{Condition: "and or"}); !apperrors.IsCode(err, apperrors.CodeConditionInvalid) {
		t.Fatalf("new err = %v, want %s", err, apperrors.CodeConditionInvalid)
	}
}
