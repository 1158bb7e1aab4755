package execution_test

import (
	"encoding/json"
	"testing"

	"github.com/tailored-agentic-units/interpreter/execution"
)

func TestMarshalEvent(t *testing.T) {
	tests := []struct {
		name  string
		event execution.Event
		want  map[string]any
	}{
		{
			name:  "stdout",
			event: execution.Stdout{Text: "hello\n"},
			want:  map[string]any{"type": "stdout", "text": "hello\n"},
		},
		{
			name:  "stderr",
			event: execution.Stderr{Text: "warn"},
			want:  map[string]any{"type": "stderr", "text": "warn"},
		},
		{
			name:  "error",
			event: execution.Error{Name: "NameError", Value: "x is not defined"},
			want:  map[string]any{"type": "error", "name": "NameError", "value": "x is not defined"},
		},
		{
			name:  "progress",
			event: execution.Progress{Count: 3},
			want:  map[string]any{"type": "progress", "count": float64(3)},
		},
		{
			name:  "end",
			event: execution.End{},
			want:  map[string]any{"type": "end_of_execution"},
		},
		{
			name:  "unexpected end",
			event: execution.UnexpectedEnd{},
			want:  map[string]any{"type": "unexpected_end_of_execution"},
		},
		{
			name:  "result",
			event: execution.Result{Text: "42", HTML: "<b>42</b>", IsMainResult: true},
			want:  map[string]any{"type": "result", "text": "42", "html": "<b>42</b>", "is_main_result": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := execution.MarshalEvent(tt.event)
			if err != nil {
				t.Fatalf("MarshalEvent() error = %v", err)
			}

			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}

			for key, want := range tt.want {
				if got[key] != want {
					t.Errorf("field %q = %v, want %v", key, got[key], want)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("got %d fields %v, want %d fields %v", len(got), got, len(tt.want), tt.want)
			}
		})
	}
}

func TestTerminalEvents(t *testing.T) {
	terminals := []execution.Event{execution.End{}, execution.UnexpectedEnd{}}
	for _, ev := range terminals {
		if !ev.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", ev.EventType())
		}
	}

	others := []execution.Event{
		execution.Stdout{}, execution.Stderr{}, execution.Result{},
		execution.Error{}, execution.Progress{},
	}
	for _, ev := range others {
		if ev.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", ev.EventType())
		}
	}
}
