package protocol_test

import (
	"testing"

	"github.com/tailored-agentic-units/interpreter/core/protocol"
)

func TestNewExecuteRequest_Interactive(t *testing.T) {
	env, err := protocol.NewExecuteRequest("session-1", "print(1)", false)
	if err != nil {
		t.Fatalf("NewExecuteRequest() error = %v", err)
	}

	if env.Header.MsgID == "" {
		t.Error("Header.MsgID is empty, want a fresh correlation id")
	}
	if env.Header.MsgType != protocol.KindExecuteRequest {
		t.Errorf("Header.MsgType = %s, want %s", env.Header.MsgType, protocol.KindExecuteRequest)
	}
	if env.Header.Session != "session-1" {
		t.Errorf("Header.Session = %q, want %q", env.Header.Session, "session-1")
	}
	if env.Header.Date.IsZero() {
		t.Error("Header.Date is zero, want a timestamp")
	}

	var content protocol.ExecuteRequestContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		t.Fatalf("DecodeContent() error = %v", err)
	}
	if content.Code != "print(1)" {
		t.Errorf("Code = %q, want %q", content.Code, "print(1)")
	}
	if content.Silent {
		t.Error("Silent = true, want false for an interactive run")
	}
	if !content.StoreHistory {
		t.Error("StoreHistory = false, want true for an interactive run")
	}
	if !content.StopOnError {
		t.Error("StopOnError = false, want true for an interactive run")
	}
}

func TestNewExecuteRequest_Silent(t *testing.T) {
	env, err := protocol.NewExecuteRequest("session-1", "import os", true)
	if err != nil {
		t.Fatalf("NewExecuteRequest() error = %v", err)
	}

	var content protocol.ExecuteRequestContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		t.Fatalf("DecodeContent() error = %v", err)
	}
	if !content.Silent {
		t.Error("Silent = false, want true for a background run")
	}
	if content.StoreHistory {
		t.Error("StoreHistory = true, want false for a background run")
	}
	if content.StopOnError {
		t.Error("StopOnError = true, want false for a background run")
	}
}

func TestNewExecuteRequest_FreshCorrelationIDs(t *testing.T) {
	a, err := protocol.NewExecuteRequest("s", "x", false)
	if err != nil {
		t.Fatalf("NewExecuteRequest() error = %v", err)
	}
	b, err := protocol.NewExecuteRequest("s", "x", false)
	if err != nil {
		t.Fatalf("NewExecuteRequest() error = %v", err)
	}
	if a.Header.MsgID == b.Header.MsgID {
		t.Errorf("two requests share MsgID %q", a.Header.MsgID)
	}
}

func TestDecode_CorrelationID(t *testing.T) {
	raw := []byte(`{
		"header": {"msg_id": "reply-1", "msg_type": "stream", "session": "s"},
		"parent_header": {"msg_id": "request-1", "msg_type": "execute_request", "session": "s"},
		"content": {"name": "stdout", "text": "hi"}
	}`)

	env, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := env.CorrelationID(); got != "request-1" {
		t.Errorf("CorrelationID() = %q, want %q", got, "request-1")
	}

	var content protocol.StreamContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		t.Fatalf("DecodeContent() error = %v", err)
	}
	if content.Name != "stdout" || content.Text != "hi" {
		t.Errorf("StreamContent = %+v, want {stdout hi}", content)
	}
}

func TestDecode_NoParentHeader(t *testing.T) {
	raw := []byte(`{
		"header": {"msg_id": "status-1", "msg_type": "status", "session": "s"},
		"parent_header": {},
		"content": {"execution_state": "restarting"}
	}`)

	env, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := env.CorrelationID(); got != "" {
		t.Errorf("CorrelationID() = %q, want empty for an unowned frame", got)
	}

	var content protocol.StatusContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		t.Fatalf("DecodeContent() error = %v", err)
	}
	if content.ExecutionState != protocol.StateRestarting {
		t.Errorf("ExecutionState = %s, want %s", content.ExecutionState, protocol.StateRestarting)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	env, err := protocol.NewExecuteRequest("session-1", "1+1", false)
	if err != nil {
		t.Fatalf("NewExecuteRequest() error = %v", err)
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Header.MsgID != env.Header.MsgID {
		t.Errorf("MsgID = %q, want %q", decoded.Header.MsgID, env.Header.MsgID)
	}
	if decoded.Channel != "shell" {
		t.Errorf("Channel = %q, want %q", decoded.Channel, "shell")
	}
}

func TestDecodeContent_EmptyContent(t *testing.T) {
	env := &protocol.Envelope{}
	var content protocol.StatusContent
	if err := protocol.DecodeContent(env, &content); err != nil {
		t.Errorf("DecodeContent() on empty content error = %v, want nil", err)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := protocol.Decode([]byte("not json")); err == nil {
		t.Error("Decode() of malformed frame should fail")
	}
}
