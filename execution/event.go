// Package execution defines the event vocabulary a kernel run produces and
// the correlation record that tracks one in-flight run until its terminal
// event.
package execution

import "encoding/json"

// EventType discriminates the members of the Event union. It doubles as the
// "type" field of an event's JSON form.
type EventType string

const (
	TypeStdout        EventType = "stdout"
	TypeStderr        EventType = "stderr"
	TypeResult        EventType = "result"
	TypeError         EventType = "error"
	TypeProgress      EventType = "progress"
	TypeEnd           EventType = "end_of_execution"
	TypeUnexpectedEnd EventType = "unexpected_end_of_execution"
)

// Event is one item in a run's output sequence. Exactly one terminal event
// (End or UnexpectedEnd) is delivered per execution; nothing follows it.
type Event interface {
	EventType() EventType
	// Terminal reports whether the event ends the run's sequence.
	Terminal() bool
}

// Stdout is a chunk of standard output, delivered verbatim in kernel order.
type Stdout struct {
	Text string `json:"text"`
}

// Stderr is a chunk of standard error, delivered verbatim in kernel order.
type Stderr struct {
	Text string `json:"text"`
}

// Result is one displayed value in its available representations. Binary
// formats (PNG, JPEG, PDF) are base64 as received from the kernel. IsMainResult
// distinguishes the run's final value from intermediate displays.
type Result struct {
	Text         string `json:"text,omitempty"`
	HTML         string `json:"html,omitempty"`
	Markdown     string `json:"markdown,omitempty"`
	SVG          string `json:"svg,omitempty"`
	PNG          string `json:"png,omitempty"`
	JPEG         string `json:"jpeg,omitempty"`
	PDF          string `json:"pdf,omitempty"`
	LaTeX        string `json:"latex,omitempty"`
	JSON         any    `json:"json,omitempty"`
	JavaScript   string `json:"javascript,omitempty"`
	IsMainResult bool   `json:"is_main_result"`
}

// Error reports a failure: either one the kernel raised while running the
// code, or a synthetic failure of the bridge itself (transport loss, restart).
type Error struct {
	Name      string   `json:"name"`
	Value     string   `json:"value"`
	Traceback []string `json:"traceback,omitempty"`
}

// Progress carries the kernel's execution counter when it acknowledges that a
// run began processing.
type Progress struct {
	Count int `json:"count"`
}

// End terminates a run that ran to completion (successfully or with a
// kernel-reported error event before it).
type End struct{}

// UnexpectedEnd terminates a run that was cut short: transport loss, kernel
// restart, or send-retry exhaustion.
type UnexpectedEnd struct{}

func (Stdout) EventType() EventType        { return TypeStdout }
func (Stderr) EventType() EventType        { return TypeStderr }
func (Result) EventType() EventType        { return TypeResult }
func (Error) EventType() EventType         { return TypeError }
func (Progress) EventType() EventType      { return TypeProgress }
func (End) EventType() EventType           { return TypeEnd }
func (UnexpectedEnd) EventType() EventType { return TypeUnexpectedEnd }

func (Stdout) Terminal() bool        { return false }
func (Stderr) Terminal() bool        { return false }
func (Result) Terminal() bool        { return false }
func (Error) Terminal() bool         { return false }
func (Progress) Terminal() bool      { return false }
func (End) Terminal() bool           { return true }
func (UnexpectedEnd) Terminal() bool { return true }

// MarshalEvent serializes an event as a single JSON object with a "type"
// discriminator, the form the façade writes as one line per event.
func MarshalEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case Stdout:
		return marshalTagged(e.EventType(), e)
	case Stderr:
		return marshalTagged(e.EventType(), e)
	case Result:
		return marshalTagged(e.EventType(), e)
	case Error:
		return marshalTagged(e.EventType(), e)
	case Progress:
		return marshalTagged(e.EventType(), e)
	default:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{ev.EventType()})
	}
}

func marshalTagged[T any](t EventType, payload T) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	tag, err := json.Marshal(struct {
		Type EventType `json:"type"`
	}{t})
	if err != nil {
		return nil, err
	}

	if string(body) == "{}" {
		return tag, nil
	}
	merged := append(tag[:len(tag)-1], ',')
	merged = append(merged, body[1:]...)
	return merged, nil
}
