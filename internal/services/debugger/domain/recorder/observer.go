package recorder

import "github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/inputtrace"

// Observer receives recorder side effects. Callbacks run synchronously on the
// goroutine that performed the change and must not call back into navigation,
// Stop or Snapshot.
type Observer interface {
	OnStatusChanged(status Status)
	OnSpanHighlighted(tokenIndex int, attr inputtrace.Attribute)
	OnLocationResolved(line, charInLine int)
	OnSessionTerminated(err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnStatusChanged(Status) {}

func (NopObserver) OnSpanHighlighted(int, inputtrace.Attribute) {}

func (NopObserver) OnLocationResolved(int, int) {}

func (NopObserver) OnSessionTerminated(error) {}

// Observers fans notifications out in order.
type Observers []Observer

func (o Observers) OnStatusChanged(status Status) {
	for _, observer := range o {
		observer.OnStatusChanged(status)
	}
}

func (o Observers) OnSpanHighlighted(tokenIndex int, attr inputtrace.Attribute) {
	for _, observer := range o {
		observer.OnSpanHighlighted(tokenIndex, attr)
	}
}

func (o Observers) OnLocationResolved(line, charInLine int) {
	for _, observer := range o {
		observer.OnLocationResolved(line, charInLine)
	}
}

func (o Observers) OnSessionTerminated(err error) {
	for _, observer := range o {
		observer.OnSessionTerminated(err)
	}
}
