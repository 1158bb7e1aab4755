// Package contexts is the registry of execution contexts: named, stateful
// execution environments, each bound to one remote kernel and one live
// connection. The Manager is an explicit object constructed once per process
// and passed by reference — there is no package-level mutable state.
package contexts

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/interpreter/connection"
	"github.com/tailored-agentic-units/interpreter/execution"
	"github.com/tailored-agentic-units/interpreter/observability"
)

// defaultCWD is the working directory for lazily created default contexts.
const defaultCWD = "/home/user"

// Context describes one addressable execution environment. The JSON shape is
// the façade contract: {id, language, cwd}.
type Context struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	CWD      string `json:"cwd"`

	SessionID string `json:"-"`
	KernelID  string `json:"-"`
}

// KernelGateway is the registry's view of the external kernel gateway.
type KernelGateway interface {
	CreateSession(ctx context.Context, name, kernelSpec string) (sessionID, kernelID string, err error)
	RestartKernel(ctx context.Context, kernelID string) error
	DeleteKernel(ctx context.Context, kernelID string) error
	DialChannel(ctx context.Context, kernelID string) (connection.Transport, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver sets the observability sink for the registry and the
// connections it opens. Defaults to NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithDefaultCWD overrides the working directory of lazily created default
// contexts.
func WithDefaultCWD(cwd string) Option {
	return func(m *Manager) { m.defaultCWD = cwd }
}

type entry struct {
	context Context
	conn    *connection.Connection
}

// Manager maps context identifiers to live connections and tracks the single
// default context per normalized language.
type Manager struct {
	gateway    KernelGateway
	observer   observability.Observer
	defaultCWD string

	mu       sync.RWMutex
	contexts map[string]*entry
	defaults map[string]string // normalized language → context id

	// defaultMu serializes lazy default creation so two callers racing on
	// the same language cannot create two kernels.
	defaultMu sync.Mutex
}

// NewManager creates a registry backed by the given gateway.
func NewManager(gw KernelGateway, opts ...Option) *Manager {
	m := &Manager{
		gateway:    gw,
		observer:   observability.NoOpObserver{},
		defaultCWD: defaultCWD,
		contexts:   make(map[string]*entry),
		defaults:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create provisions a new context: a fresh kernel session from the gateway, a
// live connection to its channel, and the working directory pinned with the
// language's native statement. Pin failure is fatal — the kernel is torn down
// best-effort and nothing is registered, because a context without a
// guaranteed working directory is unusable.
func (m *Manager) Create(ctx context.Context, language, cwd string) (Context, error) {
	normalized := Normalize(language)

	sessionID, kernelID, err := m.gateway.CreateSession(ctx, normalized, kernelSpec(normalized))
	if err != nil {
		return Context{}, fmt.Errorf("failed to create kernel session: %w", err)
	}

	conn, err := m.connect(ctx, sessionID, kernelID)
	if err != nil {
		_ = m.gateway.DeleteKernel(ctx, kernelID)
		return Context{}, err
	}

	if statement := CwdStatement(normalized, cwd); statement != "" {
		if err := conn.PinDirectory(ctx, statement); err != nil {
			observability.Emit(ctx, m.observer, EventPinFail, observability.LevelError, "contexts.Create", map[string]any{
				"language": language,
				"cwd":      cwd,
				"error":    err.Error(),
			})
			_ = conn.Close()
			_ = m.gateway.DeleteKernel(ctx, kernelID)
			return Context{}, fmt.Errorf("failed to pin working directory %s: %w", cwd, err)
		}
	}

	created := Context{
		ID:        uuid.NewString(),
		Language:  language,
		CWD:       cwd,
		SessionID: sessionID,
		KernelID:  kernelID,
	}

	m.mu.Lock()
	m.contexts[created.ID] = &entry{context: created, conn: conn}
	m.mu.Unlock()

	observability.Emit(ctx, m.observer, EventCreate, observability.LevelInfo, "contexts.Create", map[string]any{
		"context_id": created.ID,
		"language":   language,
		"kernel_id":  kernelID,
	})
	return created, nil
}

// GetOrCreateDefault returns the single shared context for the language,
// creating it on first use. Aliases of one kernel family share one default.
func (m *Manager) GetOrCreateDefault(ctx context.Context, language string) (Context, error) {
	normalized := Normalize(language)

	m.mu.RLock()
	id, ok := m.defaults[normalized]
	m.mu.RUnlock()
	if ok {
		if c, found := m.Get(id); found {
			return c, nil
		}
	}

	m.defaultMu.Lock()
	defer m.defaultMu.Unlock()

	// Re-check under the creation lock: another caller may have won.
	m.mu.RLock()
	id, ok = m.defaults[normalized]
	m.mu.RUnlock()
	if ok {
		if c, found := m.Get(id); found {
			return c, nil
		}
	}

	created, err := m.Create(ctx, normalized, m.defaultCWD)
	if err != nil {
		return Context{}, err
	}

	m.mu.Lock()
	m.defaults[normalized] = created.ID
	m.mu.Unlock()

	return created, nil
}

// Restart replaces the context's kernel process while preserving all
// identifiers: the old connection is closed best-effort, the gateway restarts
// the kernel, and a fresh connection is attached. Variables and state from
// before the restart do not survive; the declared working directory is
// re-pinned so the invariant holds on the new kernel too.
func (m *Manager) Restart(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.contexts[id]
	m.mu.RUnlock()
	if !ok {
		return ErrContextNotFound
	}

	_ = e.conn.Close()

	if err := m.gateway.RestartKernel(ctx, e.context.KernelID); err != nil {
		return fmt.Errorf("failed to restart kernel: %w", err)
	}

	conn, err := m.connect(ctx, e.context.SessionID, e.context.KernelID)
	if err != nil {
		return err
	}

	if statement := CwdStatement(e.context.Language, e.context.CWD); statement != "" {
		if err := conn.PinDirectory(ctx, statement); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to re-pin working directory %s: %w", e.context.CWD, err)
		}
	}

	m.mu.Lock()
	e.conn = conn
	m.mu.Unlock()

	observability.Emit(ctx, m.observer, EventRestart, observability.LevelInfo, "contexts.Restart", map[string]any{
		"context_id": id,
		"kernel_id":  e.context.KernelID,
	})
	return nil
}

// Remove tears the context down: connection closed, kernel deleted, and the
// context dropped from the registry and any default-language slot.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.contexts[id]
	if ok {
		delete(m.contexts, id)
		for language, defaultID := range m.defaults {
			if defaultID == id {
				delete(m.defaults, language)
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return ErrContextNotFound
	}

	_ = e.conn.Close()

	if err := m.gateway.DeleteKernel(ctx, e.context.KernelID); err != nil {
		return fmt.Errorf("failed to delete kernel: %w", err)
	}

	observability.Emit(ctx, m.observer, EventRemove, observability.LevelInfo, "contexts.Remove", map[string]any{
		"context_id": id,
		"kernel_id":  e.context.KernelID,
	})
	return nil
}

// Get returns the context registered under the identifier.
func (m *Manager) Get(id string) (Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.contexts[id]
	if !ok {
		return Context{}, false
	}
	return e.context, true
}

// List returns all registered contexts.
func (m *Manager) List() []Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Context, 0, len(m.contexts))
	for _, e := range m.contexts {
		out = append(out, e.context)
	}
	return out
}

// Run executes code on the context's connection and returns its event
// stream.
func (m *Manager) Run(ctx context.Context, id, code string) (<-chan execution.Event, error) {
	m.mu.RLock()
	e, ok := m.contexts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrContextNotFound
	}
	return e.conn.Run(ctx, code), nil
}

// Shutdown closes every connection. Kernels are left to the gateway.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.contexts))
	for _, e := range m.contexts {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		_ = e.conn.Close()
	}
}

func (m *Manager) connect(ctx context.Context, sessionID, kernelID string) (*connection.Connection, error) {
	dial := func(ctx context.Context) (connection.Transport, error) {
		return m.gateway.DialChannel(ctx, kernelID)
	}
	conn, err := connection.New(ctx, sessionID, dial, connection.WithObserver(m.observer))
	if err != nil {
		return nil, fmt.Errorf("failed to open kernel connection: %w", err)
	}
	return conn, nil
}
