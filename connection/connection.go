// Package connection owns the single live transport to one kernel: it
// translates run requests into the kernel messaging protocol, correlates the
// kernel's asynchronous reply frames back to the originating request, and
// recovers from transient transport loss.
//
// One background receiver goroutine per connection reads frames off the
// transport and routes translated events into per-execution mailboxes. Many
// logically concurrent runs multiplex over the one transport; the send lock
// serializes request issuance only, never result delivery.
package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/interpreter/core/protocol"
	"github.com/tailored-agentic-units/interpreter/execution"
	"github.com/tailored-agentic-units/interpreter/observability"
)

// maxSendAttempts bounds reconnect-and-retry on a failed send. Waiting for
// kernel output is unbounded by design; only issuance is retried.
const maxSendAttempts = 3

// Option configures a Connection.
type Option func(*Connection)

// WithObserver sets the observability sink. Defaults to NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(c *Connection) { c.observer = o }
}

// Connection multiplexes executions over one live transport to a kernel.
type Connection struct {
	session  string
	dial     Dialer
	observer observability.Observer

	// sendMu serializes request issuance so the order requests hit the
	// kernel is deterministic.
	sendMu sync.Mutex

	mu           sync.RWMutex
	transport    Transport
	executions   map[string]*execution.Execution
	receiverDone chan struct{}
	closed       bool
}

// New dials the kernel channel and starts the background receiver loop.
func New(ctx context.Context, session string, dial Dialer, opts ...Option) (*Connection, error) {
	c := &Connection{
		session:    session,
		dial:       dial,
		observer:   observability.NoOpObserver{},
		executions: make(map[string]*execution.Execution),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kernel channel: %w", err)
	}
	c.attach(transport)

	return c, nil
}

// Session returns the kernel session id stamped on outgoing requests.
func (c *Connection) Session() string { return c.session }

// Run issues a code snippet and returns its event stream: a lazy, finite,
// non-restartable sequence. The stream ends silently on end_of_execution and
// forwards unexpected_end_of_execution once before ending. Transport failures
// surface on the stream as an error event plus an unexpected terminal, never
// as a Go error — a Run stream always terminates.
//
// Cancelling ctx abandons the stream and reclaims the execution record; the
// kernel is not signalled and keeps running the code.
func (c *Connection) Run(ctx context.Context, code string) <-chan execution.Event {
	out := make(chan execution.Event)

	go func() {
		defer close(out)

		env, err := protocol.NewExecuteRequest(c.session, code, false)
		if err != nil {
			deliverFailure(ctx, out, transportError(err))
			return
		}

		exec := execution.New(env.Header.MsgID, execution.KindInteractive)
		c.track(exec)
		defer c.forget(exec.ID())

		if err := c.send(ctx, env); err != nil {
			deliverFailure(ctx, out, transportError(err))
			return
		}

		for {
			ev, err := exec.Next(ctx)
			if err != nil {
				return
			}
			if ev.Terminal() {
				if ev.EventType() == execution.TypeUnexpectedEnd {
					select {
					case out <- ev:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// PinDirectory issues the prepared working-directory statement as a silent
// background run and drains it internally. Any error event fails the call; a
// context without a guaranteed working directory is unusable.
func (c *Connection) PinDirectory(ctx context.Context, statement string) error {
	env, err := protocol.NewExecuteRequest(c.session, statement, true)
	if err != nil {
		return fmt.Errorf("failed to build pin request: %w", err)
	}

	exec := execution.New(env.Header.MsgID, execution.KindBackground)
	c.track(exec)
	defer c.forget(exec.ID())

	if err := c.send(ctx, env); err != nil {
		return fmt.Errorf("failed to send pin request: %w", err)
	}

	for {
		ev, err := exec.Next(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case execution.Error:
			return fmt.Errorf("directory pinning failed: %s: %s", e.Name, e.Value)
		case execution.UnexpectedEnd:
			return fmt.Errorf("directory pinning interrupted: %w", ErrConnectionClosed)
		case execution.End:
			return nil
		}
	}
}

// send transmits the envelope under the send lock, reconnecting and retrying
// a bounded number of times on transport failure.
func (c *Connection) send(ctx context.Context, env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		c.mu.RLock()
		transport, closed := c.transport, c.closed
		c.mu.RUnlock()

		if closed {
			return ErrConnectionClosed
		}

		if transport == nil {
			if err := c.reconnect(ctx); err != nil {
				lastErr = err
				continue
			}
			c.mu.RLock()
			transport = c.transport
			c.mu.RUnlock()
			if transport == nil {
				// The fresh transport was lost before the write.
				continue
			}
		}

		if err := transport.WriteMessage(data); err != nil {
			lastErr = err
			observability.Emit(ctx, c.observer, EventSendRetry, observability.LevelWarning, "connection.send", map[string]any{
				"session": c.session,
				"msg_id":  env.Header.MsgID,
				"attempt": attempt,
				"error":   err.Error(),
			})
			if rerr := c.reconnect(ctx); rerr != nil {
				lastErr = rerr
			}
			continue
		}

		observability.Emit(ctx, c.observer, EventSend, observability.LevelVerbose, "connection.send", map[string]any{
			"session": c.session,
			"msg_id":  env.Header.MsgID,
		})
		return nil
	}

	return fmt.Errorf("send failed after %d attempts: %w", maxSendAttempts, lastErr)
}

// reconnect closes the current transport if any, waits for the prior
// receiver loop to fully exit, then dials again and starts a new receiver.
// Detaching the transport first keeps the old receiver's exit silent: a
// deliberate swap must not invalidate in-flight executions, whose replies
// continue on the new channel. Only when the redial fails is the connection
// truly lost, and every tracked execution is notified then.
func (c *Connection) reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.transport != nil {
		transport := c.transport
		c.transport = nil
		_ = transport.Close()
	}
	done := c.receiverDone
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	transport, err := c.dial(ctx)
	if err != nil {
		c.broadcast(connectionLostError())
		return fmt.Errorf("failed to reconnect kernel channel: %w", err)
	}

	if !c.attach(transport) {
		_ = transport.Close()
		return ErrConnectionClosed
	}

	observability.Emit(ctx, c.observer, EventReconnect, observability.LevelInfo, "connection.reconnect", map[string]any{
		"session": c.session,
	})
	return nil
}

// attach installs a fresh transport and starts its receiver loop. It reports
// false when the connection was closed in the meantime (Close may complete
// while a reconnect is waiting on the old receiver); the caller then still
// owns the transport and must release it.
func (c *Connection) attach(transport Transport) bool {
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.transport = transport
	c.receiverDone = done
	c.mu.Unlock()

	go c.receive(transport, done)
	return true
}

// Close tears the connection down and delivers a connection-lost error plus
// an unexpected terminal to every outstanding execution, after the receiver
// loop has fully exited.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	transport := c.transport
	c.transport = nil
	done := c.receiverDone
	c.mu.Unlock()

	var err error
	if transport != nil {
		err = transport.Close()
	}
	if done != nil {
		<-done
	}

	c.broadcast(connectionLostError())

	observability.Emit(context.Background(), c.observer, EventClosed, observability.LevelInfo, "connection.close", map[string]any{
		"session": c.session,
	})
	return err
}

// receive is the background receiver loop: it reads frames until the
// transport fails or closes. A spontaneous loss (the transport is still the
// connection's current one) is broadcast to every still-tracked execution so
// no consumer is left waiting; a transport detached by reconnect or Close
// exits silently, since the detaching side decides how consumers are
// notified.
func (c *Connection) receive(transport Transport, done chan struct{}) {
	defer close(done)

	for {
		data, err := transport.ReadMessage()
		if err != nil {
			c.mu.Lock()
			lost := c.transport == transport && !c.closed
			if lost {
				c.transport = nil
			}
			c.mu.Unlock()

			if !lost {
				return
			}

			observability.Emit(context.Background(), c.observer, EventLost, observability.LevelWarning, "connection.receive", map[string]any{
				"session": c.session,
				"error":   err.Error(),
			})
			c.broadcast(connectionLostError())
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			observability.Emit(context.Background(), c.observer, EventFrameDropped, observability.LevelWarning, "connection.receive", map[string]any{
				"session": c.session,
				"error":   err.Error(),
			})
			continue
		}

		c.dispatch(env)
	}
}

// broadcast delivers an error plus an unexpected terminal to every tracked
// execution. Used when the whole connection is invalidated at once: transport
// loss and kernel restart are fatal to all in-flight work.
func (c *Connection) broadcast(errEvent execution.Error) {
	c.mu.RLock()
	tracked := make([]*execution.Execution, 0, len(c.executions))
	for _, exec := range c.executions {
		tracked = append(tracked, exec)
	}
	c.mu.RUnlock()

	for _, exec := range tracked {
		exec.Emit(errEvent)
		exec.Emit(execution.UnexpectedEnd{})
	}
}

func (c *Connection) track(exec *execution.Execution) {
	c.mu.Lock()
	c.executions[exec.ID()] = exec
	c.mu.Unlock()
}

// forget removes an execution record once its consumer has drained the
// terminal event (or abandoned the stream). Later frames for the id are
// silently dropped by the receiver.
func (c *Connection) forget(id string) {
	c.mu.Lock()
	exec, ok := c.executions[id]
	if ok {
		delete(c.executions, id)
	}
	c.mu.Unlock()

	if ok {
		exec.Close()
	}
}

func (c *Connection) lookup(id string) (*execution.Execution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exec, ok := c.executions[id]
	return exec, ok
}

// outstanding returns the number of tracked executions.
func (c *Connection) outstanding() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.executions)
}

// deliverFailure pushes a synthetic error and an unexpected terminal onto a
// Run stream after send retries are exhausted.
func deliverFailure(ctx context.Context, out chan<- execution.Event, errEvent execution.Error) {
	select {
	case out <- errEvent:
	case <-ctx.Done():
		return
	}
	select {
	case out <- execution.UnexpectedEnd{}:
	case <-ctx.Done():
	}
}
