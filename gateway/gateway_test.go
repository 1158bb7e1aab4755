package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestCreateSession(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "sess-1", "kernel": {"id": "kern-1"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Token: "secret"})

	sessionID, kernelID, err := client.CreateSession(context.Background(), "python", "python3")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if sessionID != "sess-1" {
		t.Errorf("sessionID = %q, want %q", sessionID, "sess-1")
	}
	if kernelID != "kern-1" {
		t.Errorf("kernelID = %q, want %q", kernelID, "kern-1")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "POST /api/sessions" {
		t.Errorf("request = %q, want %q", gotPath, "POST /api/sessions")
	}
	if gotAuth != "token secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "token secret")
	}
	kernel, _ := gotBody["kernel"].(map[string]any)
	if kernel["name"] != "python3" {
		t.Errorf("kernel.name = %v, want python3", kernel["name"])
	}
	if gotBody["type"] != "notebook" {
		t.Errorf("type = %v, want notebook", gotBody["type"])
	}
}

func TestCreateSession_MissingKernelID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "sess-1", "kernel": {}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	if _, _, err := client.CreateSession(context.Background(), "python", "python3"); err == nil {
		t.Fatal("CreateSession() error = nil, want failure for response without kernel id")
	}
}

func TestCreateSession_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such kernelspec", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, _, err := client.CreateSession(context.Background(), "python", "nope")
	if err == nil {
		t.Fatal("CreateSession() error = nil, want gateway failure")
	}
	if !strings.Contains(err.Error(), "no such kernelspec") {
		t.Errorf("error = %q, want the gateway's body included", err)
	}
}

func TestRestartAndDeleteKernel(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/"}) // trailing slash is tolerated

	if err := client.RestartKernel(context.Background(), "kern-1"); err != nil {
		t.Fatalf("RestartKernel() error = %v", err)
	}
	if err := client.DeleteKernel(context.Background(), "kern-1"); err != nil {
		t.Fatalf("DeleteKernel() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"POST /api/kernels/kern-1/restart", "DELETE /api/kernels/kern-1"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestDialChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/kernels/kern-1/channels" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "token secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Echo one frame so the transport round-trips.
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(msgType, data)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Token: "secret", Timeout: 5 * time.Second})

	transport, err := client.DialChannel(context.Background(), "kern-1")
	if err != nil {
		t.Fatalf("DialChannel() error = %v", err)
	}
	defer transport.Close()

	if err := transport.WriteMessage([]byte(`{"ping": true}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	data, err := transport.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(data) != `{"ping": true}` {
		t.Errorf("echoed frame = %s, want the sent frame back", data)
	}
}

func TestChannelURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://gw.local:8888", "ws://gw.local:8888/api/kernels/k/channels"},
		{"https://gw.local", "wss://gw.local/api/kernels/k/channels"},
		{"http://gw.local:8888/prefix", "ws://gw.local:8888/prefix/api/kernels/k/channels"},
	}
	for _, tt := range tests {
		client := NewClient(Config{BaseURL: tt.base})
		got, err := client.channelURL("k")
		if err != nil {
			t.Fatalf("channelURL(%q) error = %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("channelURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestConfigMerge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge(&Config{Token: "secret"})

	if cfg.BaseURL != "http://127.0.0.1:8888" {
		t.Errorf("BaseURL = %q, want default preserved", cfg.BaseURL)
	}
	if cfg.Token != "secret" {
		t.Errorf("Token = %q, want %q", cfg.Token, "secret")
	}
	if cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want default preserved", cfg.Timeout)
	}

	cfg.Merge(&Config{BaseURL: "https://gw.internal", Timeout: time.Minute})
	if cfg.BaseURL != "https://gw.internal" || cfg.Timeout != time.Minute {
		t.Errorf("merged config = %+v", cfg)
	}
}
