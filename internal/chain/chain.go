// Package chain implements membership in the OS clipboard viewer chain.
//
// The viewer chain is a singly linked list of windows maintained
// cooperatively by its members. The OS only knows the head; every member
// remembers the member after it and must relay chain traffic onward:
//
//	OS ──► head ──► ... ──► us ──► next ──► ... ──► NoHandle
//
// Two kinds of traffic arrive:
//
//   - ContentChanged: the clipboard payload was replaced. Always relayed to
//     the next member, then inspected locally.
//   - MembershipChanged: some member is leaving. If the leaving member is our
//     next, we adopt its successor; otherwise the message is relayed.
//
// A member that forgets to relay, or leaves without splicing itself out,
// silently breaks clipboard notifications for every other member on the
// machine. Handler encodes those obligations as a small state machine.
package chain

import (
	"errors"
	"fmt"
)

// Handle identifies a chain member (a window handle on Windows).
type Handle uintptr

// NoHandle marks the end of the chain.
const NoHandle Handle = 0

// Kind selects the type of chain traffic.
type Kind uint8

const (
	ContentChanged Kind = iota + 1
	MembershipChanged
)

func (k Kind) String() string {
	switch k {
	case ContentChanged:
		return "content-changed"
	case MembershipChanged:
		return "membership-changed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one unit of chain traffic. WParam and LParam carry the raw
// message parameters and are relayed verbatim.
type Message struct {
	Kind   Kind
	WParam uintptr
	LParam uintptr
}

// Removed returns the member leaving the chain (MembershipChanged only).
func (m Message) Removed() Handle { return Handle(m.WParam) }

// Next returns the successor of the leaving member (MembershipChanged only).
func (m Message) Next() Handle { return Handle(m.LParam) }

// Changed returns a content-changed message.
func Changed() Message { return Message{Kind: ContentChanged} }

// Leaving returns a membership-changed message announcing that removed is
// leaving and next takes its place.
func Leaving(removed, next Handle) Message {
	return Message{Kind: MembershipChanged, WParam: uintptr(removed), LParam: uintptr(next)}
}

// System is the OS side of the chain.
type System interface {
	// SetViewer inserts self at the head of the chain and returns the
	// previous head, which becomes self's next member.
	SetViewer(self Handle) (Handle, error)

	// ChangeChain removes self from the chain, splicing next into its place.
	ChangeChain(self, next Handle) error

	// Forward relays msg to target. Forwarding to NoHandle must be a no-op.
	Forward(target Handle, msg Message) error
}

var (
	// ErrAlreadyRegistered is returned by Register when the handler is
	// already a chain member.
	ErrAlreadyRegistered = errors.New("chain: already registered")

	// ErrDetached is returned by Register after Unregister.
	ErrDetached = errors.New("chain: handler detached")
)

// Error reports a failed chain (de)registration.
type Error struct {
	Op   string
	Self Handle
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chain %s (self=%#x): %v", e.Op, uintptr(e.Self), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
