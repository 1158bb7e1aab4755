// Package gateway is the HTTP client for a kernel gateway: the external
// service that spawns and kills kernel processes. Control calls (create,
// restart, delete) are plain REST; the per-kernel message channel is a
// websocket handed back to the connection layer as a Transport.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/interpreter/connection"
)

const defaultTimeout = 30 * time.Second

// Config holds gateway client parameters.
type Config struct {
	// BaseURL is the gateway's HTTP root, e.g. "http://127.0.0.1:8888".
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Token is an optional bearer token sent as "Authorization: token …".
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// Timeout bounds each control call. Zero means the default of 30s.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8888",
		Timeout: defaultTimeout,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Token != "" {
		c.Token = source.Token
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
}

// Client talks to one kernel gateway.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
	}
}

type sessionRequest struct {
	Name   string        `json:"name"`
	Path   string        `json:"path"`
	Type   string        `json:"type"`
	Kernel kernelRequest `json:"kernel"`
}

type kernelRequest struct {
	Name string `json:"name"`
}

type sessionResponse struct {
	ID     string `json:"id"`
	Kernel struct {
		ID string `json:"id"`
	} `json:"kernel"`
}

// CreateSession asks the gateway to spawn a kernel of the given spec and
// returns the session and kernel identifiers.
func (c *Client) CreateSession(ctx context.Context, name, kernelSpec string) (sessionID, kernelID string, err error) {
	body, err := json.Marshal(sessionRequest{
		Name:   name,
		Path:   name,
		Type:   "notebook",
		Kernel: kernelRequest{Name: kernelSpec},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to encode session request: %w", err)
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &resp); err != nil {
		return "", "", fmt.Errorf("failed to create session: %w", err)
	}
	if resp.Kernel.ID == "" {
		return "", "", fmt.Errorf("gateway returned session %q without a kernel id", resp.ID)
	}

	return resp.ID, resp.Kernel.ID, nil
}

// RestartKernel restarts the kernel process, preserving its identifier.
func (c *Client) RestartKernel(ctx context.Context, kernelID string) error {
	path := "/api/kernels/" + url.PathEscape(kernelID) + "/restart"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to restart kernel %s: %w", kernelID, err)
	}
	return nil
}

// DeleteKernel kills the kernel process and releases its identifier.
func (c *Client) DeleteKernel(ctx context.Context, kernelID string) error {
	path := "/api/kernels/" + url.PathEscape(kernelID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete kernel %s: %w", kernelID, err)
	}
	return nil
}

// DialChannel opens the kernel's bidirectional message channel.
func (c *Client) DialChannel(ctx context.Context, kernelID string) (connection.Transport, error) {
	endpoint, err := c.channelURL(kernelID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "token "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial channel for kernel %s: %w", kernelID, err)
	}

	return connection.NewWebsocketTransport(conn), nil
}

// channelURL derives the websocket endpoint from the HTTP base URL.
func (c *Client) channelURL(kernelID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/kernels/" + url.PathEscape(kernelID) + "/channels"
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}
