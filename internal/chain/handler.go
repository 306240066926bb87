package chain

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is the lifecycle position of a Handler.
type State int32

const (
	Unregistered State = iota
	Registering
	Active
	Detached
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Active:
		return "active"
	case Detached:
		return "detached"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Status is a point-in-time view of a Handler.
type Status struct {
	State    State
	Self     Handle
	Next     Handle
	Changes  uint64 // content changes handled locally
	Forwards uint64 // messages relayed (including to NoHandle)
	Adopted  uint64 // membership changes that replaced Next
}

// Handler owns this process's position in the viewer chain.
//
// Dispatch must be called from the goroutine that delivers OS messages; the
// OS may call back into Dispatch synchronously from inside SetViewer,
// ChangeChain, Forward, or the local change callback, so no lock is held
// across any of them.
type Handler struct {
	sys      System
	self     Handle
	onChange func()

	mu       sync.Mutex
	state    State
	next     Handle
	changes  uint64
	forwards uint64
	adopted  uint64
}

// New returns an unregistered handler for the member self. onChange runs
// once per genuine content change, after the change has been relayed.
func New(sys System, self Handle, onChange func()) *Handler {
	if onChange == nil {
		onChange = func() {}
	}
	return &Handler{sys: sys, self: self, onChange: onChange}
}

// Self returns the member handle this handler represents.
func (h *Handler) Self() Handle { return h.self }

// Next returns the member messages are currently relayed to.
func (h *Handler) Next() Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

// State returns the current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Status returns a snapshot of the handler.
func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		State:    h.state,
		Self:     h.self,
		Next:     h.next,
		Changes:  h.changes,
		Forwards: h.forwards,
		Adopted:  h.adopted,
	}
}

// Register joins the chain. On failure the handler stays Unregistered and
// the caller must not proceed without chain membership.
func (h *Handler) Register() error {
	h.mu.Lock()
	switch h.state {
	case Active, Registering:
		h.mu.Unlock()
		return ErrAlreadyRegistered
	case Detached:
		h.mu.Unlock()
		return ErrDetached
	}
	h.state = Registering
	h.mu.Unlock()

	next, err := h.sys.SetViewer(h.self)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.state = Unregistered
		return &Error{Op: "register", Self: h.self, Err: err}
	}
	h.next = next
	h.state = Active
	slog.Info("joined clipboard viewer chain", "self", hexHandle(h.self), "next", hexHandle(next))
	return nil
}

// Unregister leaves the chain, splicing Next into this member's place. It is
// safe to call more than once and from every exit path; only the first call
// after a successful Register talks to the OS. The handler is Detached
// afterwards even when the OS call fails.
func (h *Handler) Unregister() error {
	h.mu.Lock()
	if h.state != Active {
		if h.state == Unregistered {
			h.state = Detached
		}
		h.mu.Unlock()
		return nil
	}
	next := h.next
	h.state = Detached
	h.next = NoHandle
	h.mu.Unlock()

	if err := h.sys.ChangeChain(h.self, next); err != nil {
		return &Error{Op: "unregister", Self: h.self, Err: err}
	}
	slog.Info("left clipboard viewer chain", "self", hexHandle(h.self), "spliced", hexHandle(next))
	return nil
}

// Dispatch handles one message addressed to this member.
func (h *Handler) Dispatch(msg Message) {
	switch msg.Kind {
	case ContentChanged:
		h.contentChanged(msg)
	case MembershipChanged:
		h.membershipChanged(msg)
	default:
		slog.Debug("ignoring unknown chain message", "kind", msg.Kind)
	}
}

func (h *Handler) contentChanged(msg Message) {
	h.mu.Lock()
	state, next := h.state, h.next
	h.mu.Unlock()

	switch state {
	case Active:
	case Registering:
		// Announcement of the existing clipboard during SetViewer; relay it
		// but it is not a change.
		h.forward(next, msg)
		return
	default:
		slog.Debug("content change while not in chain", "state", state)
		return
	}

	h.forward(next, msg)

	h.mu.Lock()
	h.changes++
	h.mu.Unlock()
	h.runLocal()
}

func (h *Handler) membershipChanged(msg Message) {
	removed := msg.Removed()

	h.mu.Lock()
	if h.state != Active && h.state != Registering {
		state := h.state
		h.mu.Unlock()
		slog.Debug("membership change while not in chain", "state", state)
		return
	}
	if removed != NoHandle && removed == h.next {
		h.next = msg.Next()
		h.adopted++
		h.mu.Unlock()
		slog.Debug("next viewer left chain",
			"removed", hexHandle(removed),
			"next", hexHandle(msg.Next()),
		)
		return
	}
	next := h.next
	h.mu.Unlock()

	h.forward(next, msg)
}

// forward relays msg to target. Relaying to NoHandle is still attempted.
func (h *Handler) forward(target Handle, msg Message) {
	h.mu.Lock()
	h.forwards++
	h.mu.Unlock()
	if err := h.sys.Forward(target, msg); err != nil {
		slog.Warn("chain forward failed", "kind", msg.Kind, "target", hexHandle(target), "err", err)
	}
}

func (h *Handler) runLocal() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("clipboard change handler panicked", "panic", r)
		}
	}()
	h.onChange()
}

func hexHandle(v Handle) string { return fmt.Sprintf("%#x", uintptr(v)) }
