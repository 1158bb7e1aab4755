// Package protocol defines the wire format spoken over a kernel gateway's
// message channel: a Jupyter-style envelope carrying a typed header, the
// parent header that threads replies back to their originating request, and
// a message-kind-specific content payload.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageKind identifies the kind of a kernel message.
type MessageKind string

const (
	KindExecuteRequest MessageKind = "execute_request"
	KindExecuteReply   MessageKind = "execute_reply"
	KindExecuteInput   MessageKind = "execute_input"
	KindExecuteResult  MessageKind = "execute_result"
	KindDisplayData    MessageKind = "display_data"
	KindStream         MessageKind = "stream"
	KindError          MessageKind = "error"
	KindStatus         MessageKind = "status"
)

// ExecutionState is the kernel lifecycle state carried by status messages.
type ExecutionState string

const (
	StateBusy       ExecutionState = "busy"
	StateIdle       ExecutionState = "idle"
	StateError      ExecutionState = "error"
	StateRestarting ExecutionState = "restarting"
)

// ReplyStatus is the outcome field of an execute_reply content payload.
type ReplyStatus string

const (
	ReplyOK    ReplyStatus = "ok"
	ReplyError ReplyStatus = "error"
	ReplyAbort ReplyStatus = "abort"
)

// Header identifies one kernel message. MsgID doubles as the correlation id:
// replies to a request carry that request's header as their ParentHeader.
type Header struct {
	MsgID    string      `json:"msg_id"`
	MsgType  MessageKind `json:"msg_type"`
	Session  string      `json:"session"`
	Username string      `json:"username,omitempty"`
	Version  string      `json:"version,omitempty"`
	Date     time.Time   `json:"date"`
}

// Envelope is one frame on the gateway's bidirectional message channel.
// Content is left raw; callers decode it according to Header.MsgType.
type Envelope struct {
	Header       Header          `json:"header"`
	ParentHeader Header          `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Content      json.RawMessage `json:"content"`
	Channel      string          `json:"channel,omitempty"`
}

// CorrelationID returns the id of the request this frame replies to, or the
// empty string for frames with no owning request (e.g. a restarting status).
func (e *Envelope) CorrelationID() string {
	return e.ParentHeader.MsgID
}

// Decode parses a raw frame into an Envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// protocolVersion is the kernel messaging protocol version stamped on
// outgoing request headers.
const protocolVersion = "5.3"

// ExecuteRequestContent is the content payload of an execute_request.
type ExecuteRequestContent struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

// NewExecuteRequest builds an execute_request envelope for the given session.
// The fresh header MsgID is the correlation id all reply frames will carry.
// Silent runs are the internally issued kind: they skip history and the
// execute_input start notification, so StoreHistory and StopOnError are
// flipped together with Silent.
func NewExecuteRequest(session, code string, silent bool) (*Envelope, error) {
	content, err := json.Marshal(ExecuteRequestContent{
		Code:            code,
		Silent:          silent,
		StoreHistory:    !silent,
		UserExpressions: map[string]any{},
		StopOnError:     !silent,
	})
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Header: Header{
			MsgID:   uuid.NewString(),
			MsgType: KindExecuteRequest,
			Session: session,
			Version: protocolVersion,
			Date:    time.Now().UTC(),
		},
		Metadata: map[string]any{},
		Content:  content,
		Channel:  "shell",
	}, nil
}

// Encode serializes the envelope for transmission.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
