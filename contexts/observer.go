package contexts

import "github.com/tailored-agentic-units/interpreter/observability"

// Registry event types emitted to the observer.
const (
	EventCreate  observability.EventType = "contexts.create"
	EventRestart observability.EventType = "contexts.restart"
	EventRemove  observability.EventType = "contexts.remove"
	EventPinFail observability.EventType = "contexts.pin.fail"
)
