package connection

import "github.com/tailored-agentic-units/interpreter/observability"

// Connection event types emitted to the observer.
const (
	EventSend             observability.EventType = "connection.send"
	EventSendRetry        observability.EventType = "connection.send.retry"
	EventReconnect        observability.EventType = "connection.reconnect"
	EventLost             observability.EventType = "connection.lost"
	EventClosed           observability.EventType = "connection.closed"
	EventFrameDropped     observability.EventType = "connection.frame.dropped"
	EventFrameUnknown     observability.EventType = "connection.frame.unknown"
	EventRestartBroadcast observability.EventType = "connection.restart.broadcast"
)
