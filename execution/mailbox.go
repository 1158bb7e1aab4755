package execution

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Pop once the mailbox is closed and drained.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO queue with one producer and one consumer.
// Push never blocks, so a receiver loop can always make progress regardless
// of how slowly (or whether) the consumer drains. Pop blocks until an item
// arrives, the context is cancelled, or the mailbox is closed and empty.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
}

// NewMailbox creates an empty open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		signal: make(chan struct{}, 1),
	}
}

// Push appends an item. Pushes after Close are dropped.
func (m *Mailbox[T]) Push(item T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest item, blocking until one is available.
func (m *Mailbox[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			m.items = m.items[1:]
			m.mu.Unlock()
			return item, nil
		}
		if m.closed {
			m.mu.Unlock()
			return zero, ErrMailboxClosed
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close marks the mailbox closed. Queued items remain poppable; once drained,
// Pop returns ErrMailboxClosed.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}
