package execution

import "context"

// Kind distinguishes the two variants of an execution. They differ in how the
// kernel signals that it started processing: interactive runs get an
// execute_input notification, while background (silent) runs never do and are
// started by the first busy status instead.
type Kind int

const (
	// KindInteractive is a normal, client-visible run.
	KindInteractive Kind = iota
	// KindBackground is an internally issued silent run, e.g. directory
	// pinning at context creation.
	KindBackground
)

func (k Kind) String() string {
	switch k {
	case KindInteractive:
		return "interactive"
	case KindBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Execution is the correlation record for one in-flight run: the mailbox its
// events are routed into, and the flags the receiver loop needs to interpret
// the kernel's status and error signaling for this run.
//
// The flags are owned by the connection's single receiver goroutine; they are
// not safe for access from other goroutines.
type Execution struct {
	id      string
	kind    Kind
	mailbox *Mailbox[Event]

	inputAccepted bool
	errored       bool
	terminated    bool
}

// New creates an execution record for the given correlation id.
func New(id string, kind Kind) *Execution {
	return &Execution{
		id:      id,
		kind:    kind,
		mailbox: NewMailbox[Event](),
	}
}

// ID returns the correlation id threading this run's reply frames.
func (e *Execution) ID() string { return e.id }

// Kind returns the execution variant.
func (e *Execution) Kind() Kind { return e.kind }

// Emit appends an event to the run's output sequence. It never blocks.
// Exactly one terminal event is admitted per execution; everything after the
// first terminal is dropped, so a kernel that signals completion through two
// paths still yields a strictly terminated sequence.
func (e *Execution) Emit(ev Event) {
	if e.terminated {
		return
	}
	if ev.Terminal() {
		e.terminated = true
	}
	e.mailbox.Push(ev)
}

// Next returns the run's next event in kernel order.
func (e *Execution) Next(ctx context.Context) (Event, error) {
	return e.mailbox.Pop(ctx)
}

// InputAccepted reports whether the kernel has acknowledged the run started.
func (e *Execution) InputAccepted() bool { return e.inputAccepted }

// MarkInputAccepted records the kernel's start acknowledgement.
func (e *Execution) MarkInputAccepted() { e.inputAccepted = true }

// MarkErrored flips the errored flag and reports whether this call was the
// first to do so. Kernels may report one logical failure through both an
// error message and a failed reply; the first-caller-wins contract means
// exactly one error event reaches the consumer.
func (e *Execution) MarkErrored() bool {
	if e.errored {
		return false
	}
	e.errored = true
	return true
}

// Close closes the underlying mailbox.
func (e *Execution) Close() {
	e.mailbox.Close()
}
