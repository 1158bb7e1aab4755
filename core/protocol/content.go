package protocol

import "encoding/json"

// StreamContent is the payload of a stream message: one chunk of kernel
// stdout or stderr.
type StreamContent struct {
	Name string `json:"name"` // "stdout" or "stderr"
	Text string `json:"text"`
}

// DisplayContent is the payload of display_data and execute_result messages.
// Data maps MIME types to representations of one value.
type DisplayContent struct {
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
	ExecutionCount int            `json:"execution_count,omitempty"`
}

// ErrorContent is the payload of an error message and the error fields of a
// failed execute_reply.
type ErrorContent struct {
	Name      string   `json:"ename"`
	Value     string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// StatusContent is the payload of a status message.
type StatusContent struct {
	ExecutionState ExecutionState `json:"execution_state"`
}

// ReplyContent is the payload of an execute_reply.
type ReplyContent struct {
	Status         ReplyStatus `json:"status"`
	ExecutionCount int         `json:"execution_count,omitempty"`
	Name           string      `json:"ename,omitempty"`
	Value          string      `json:"evalue,omitempty"`
	Traceback      []string    `json:"traceback,omitempty"`
}

// InputContent is the payload of an execute_input message, the kernel's
// acknowledgement that it began processing a non-silent request.
type InputContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// DecodeContent unmarshals an envelope's raw content into the given
// kind-specific payload struct.
func DecodeContent(env *Envelope, v any) error {
	if len(env.Content) == 0 {
		return nil
	}
	return json.Unmarshal(env.Content, v)
}
