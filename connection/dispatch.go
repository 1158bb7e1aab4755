package connection

import (
	"context"
	"strings"

	"github.com/tailored-agentic-units/interpreter/core/protocol"
	"github.com/tailored-agentic-units/interpreter/execution"
	"github.com/tailored-agentic-units/interpreter/observability"
)

// frameHandler translates one kernel frame into zero or more events on the
// owning execution's mailbox. Handlers run on the receiver goroutine, which
// is the sole writer of execution flags.
type frameHandler func(c *Connection, env *protocol.Envelope, exec *execution.Execution)

// frameHandlers is the dispatch table keyed by message kind. Kinds absent
// from the table are dropped: the protocol is forward compatible by design.
var frameHandlers = map[protocol.MessageKind]frameHandler{
	protocol.KindStream:        handleStream,
	protocol.KindDisplayData:   handleDisplayData,
	protocol.KindExecuteResult: handleExecuteResult,
	protocol.KindError:         handleError,
	protocol.KindStatus:        handleStatus,
	protocol.KindExecuteReply:  handleExecuteReply,
	protocol.KindExecuteInput:  handleExecuteInput,
}

// dispatch routes one decoded frame. A restarting status is the one frame
// with no owning correlation id: it invalidates every in-flight execution on
// the connection at once.
func (c *Connection) dispatch(env *protocol.Envelope) {
	if env.Header.MsgType == protocol.KindStatus {
		var status protocol.StatusContent
		if err := protocol.DecodeContent(env, &status); err == nil && status.ExecutionState == protocol.StateRestarting {
			observability.Emit(context.Background(), c.observer, EventRestartBroadcast, observability.LevelWarning, "connection.dispatch", map[string]any{
				"session":     c.session,
				"outstanding": c.outstanding(),
			})
			c.broadcast(restartingError())
			return
		}
	}

	exec, ok := c.lookup(env.CorrelationID())
	if !ok {
		// Frame for an execution no longer tracked (consumer already done,
		// or abandoned). Dropped silently per the delivery contract.
		return
	}

	handler, ok := frameHandlers[env.Header.MsgType]
	if !ok {
		observability.Emit(context.Background(), c.observer, EventFrameUnknown, observability.LevelVerbose, "connection.dispatch", map[string]any{
			"session":  c.session,
			"msg_type": string(env.Header.MsgType),
		})
		return
	}

	handler(c, env, exec)
}

func handleStream(c *Connection, env *protocol.Envelope, exec *execution.Execution) {
	var content protocol.StreamContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		return
	}
	switch content.Name {
	case "stdout":
		exec.Emit(execution.Stdout{Text: content.Text})
	case "stderr":
		exec.Emit(execution.Stderr{Text: content.Text})
	}
}

func handleDisplayData(c *Connection, env *protocol.Envelope, exec *execution.Execution) {
	emitResult(env, exec, false)
}

func handleExecuteResult(c *Connection, env *protocol.Envelope, exec *execution.Execution) {
	emitResult(env, exec, true)
}

func emitResult(env *protocol.Envelope, exec *execution.Execution, mainResult bool) {
	var content protocol.DisplayContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		return
	}
	exec.Emit(resultFromDisplay(content, mainResult))
}

func handleError(c *Connection, env *protocol.Envelope, exec *execution.Execution) {
	var content protocol.ErrorContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		return
	}
	if exec.MarkErrored() {
		exec.Emit(execution.Error{
			Name:      content.Name,
			Value:     content.Value,
			Traceback: content.Traceback,
		})
	}
}

func handleStatus(c *Connection, env *protocol.Envelope, exec *execution.Execution) {
	var content protocol.StatusContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		return
	}

	switch content.ExecutionState {
	case protocol.StateBusy:
		// Silent runs skip execute_input, so busy is the only start signal
		// a background execution gets.
		if exec.Kind() == execution.KindBackground {
			exec.MarkInputAccepted()
		}
	case protocol.StateIdle:
		if exec.InputAccepted() {
			exec.Emit(execution.End{})
		}
	case protocol.StateError:
		// Alternate error path some kernels use instead of a top-level
		// error message; the errored guard keeps the two paths to one event.
		if exec.MarkErrored() {
			exec.Emit(execution.Error{
				Name:  "ExecutionStateError",
				Value: "kernel entered the error state",
			})
		}
		exec.Emit(execution.End{})
	}
}

func handleExecuteReply(c *Connection, env *protocol.Envelope, exec *execution.Execution) {
	var content protocol.ReplyContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		return
	}

	switch content.Status {
	case protocol.ReplyError:
		if exec.MarkErrored() {
			exec.Emit(execution.Error{
				Name:      content.Name,
				Value:     content.Value,
				Traceback: content.Traceback,
			})
		}
	case protocol.ReplyAbort:
		exec.Emit(abortedError())
		exec.Emit(execution.End{})
	}
}

func handleExecuteInput(c *Connection, env *protocol.Envelope, exec *execution.Execution) {
	// The true start signal for interactive runs; silent background runs
	// never receive it.
	if exec.Kind() != execution.KindInteractive {
		return
	}
	var content protocol.InputContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		return
	}
	exec.Emit(execution.Progress{Count: content.ExecutionCount})
	exec.MarkInputAccepted()
}

// resultFromDisplay translates a multi-format display payload into one result
// event. Only the textual representation is touched: a text wrapped in one
// matching pair of quote characters loses them exactly once. Every other
// format passes through unmodified and un-reinterpreted.
func resultFromDisplay(content protocol.DisplayContent, mainResult bool) execution.Result {
	result := execution.Result{IsMainResult: mainResult}

	for mime, value := range content.Data {
		switch mime {
		case "text/plain":
			result.Text = unquoteOnce(asText(value))
		case "text/html":
			result.HTML = asText(value)
		case "text/markdown":
			result.Markdown = asText(value)
		case "image/svg+xml":
			result.SVG = asText(value)
		case "image/png":
			result.PNG = asText(value)
		case "image/jpeg":
			result.JPEG = asText(value)
		case "application/pdf":
			result.PDF = asText(value)
		case "text/latex":
			result.LaTeX = asText(value)
		case "application/json":
			result.JSON = value
		case "application/javascript":
			result.JavaScript = asText(value)
		}
	}

	return result
}

// asText flattens a MIME representation to a string. Kernels may send a
// multi-line representation as a list of lines.
func asText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, line := range v {
			if s, ok := line.(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	default:
		return ""
	}
}

// unquoteOnce strips one matching pair of surrounding quote characters.
// Kernels commonly repr string results as 'text'; stripping happens exactly
// once so nested quoting survives.
func unquoteOnce(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first == last && (first == '\'' || first == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// Synthetic error events for failures the bridge itself detects.

func transportError(err error) execution.Error {
	return execution.Error{
		Name:  "TransportError",
		Value: "failed to deliver the execute request: " + err.Error(),
	}
}

func connectionLostError() execution.Error {
	return execution.Error{
		Name:  "ConnectionError",
		Value: "connection to the kernel was lost",
	}
}

func restartingError() execution.Error {
	return execution.Error{
		Name:  "KernelRestarting",
		Value: "kernel is restarting; all in-flight executions were interrupted",
	}
}

func abortedError() execution.Error {
	return execution.Error{
		Name:  "ExecutionAborted",
		Value: "execution was aborted by the kernel",
	}
}
