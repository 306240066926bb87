// Package chaintest provides an in-memory clipboard viewer chain for tests.
package chaintest

import (
	"errors"
	"sync"

	"go.klb.dev/clip2web/internal/chain"
)

// Member is a chain participant attached to the simulation.
type Member interface {
	Dispatch(chain.Message)
	Next() chain.Handle
}

// Delivery records one Forward call.
type Delivery struct {
	From   chain.Handle
	Target chain.Handle
	Msg    chain.Message
}

// Sim emulates the OS side of the viewer chain. Messages are delivered
// synchronously, as SendMessage does for windows owned by the calling thread.
//
// Sim itself implements chain.System with an anonymous caller; use For to
// get a System that records which member relayed each message.
type Sim struct {
	mu        sync.Mutex
	head      chain.Handle
	members   map[chain.Handle]Member
	nextID    chain.Handle
	forwards  []Delivery
	dangling  int
	failSet   error
	failSends map[chain.Handle]bool
}

// New returns an empty chain.
func New() *Sim {
	return &Sim{
		members:   make(map[chain.Handle]Member),
		failSends: make(map[chain.Handle]bool),
		nextID:    0x100,
	}
}

// NewHandle allocates a fresh member handle.
func (s *Sim) NewHandle() chain.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID += 0x10
	return s.nextID
}

// Attach routes messages for h to m.
func (s *Sim) Attach(h chain.Handle, m Member) {
	s.mu.Lock()
	s.members[h] = m
	s.mu.Unlock()
}

// Kill detaches h without leaving the chain, like a process that crashed.
// Messages sent to h afterwards count as dangling.
func (s *Sim) Kill(h chain.Handle) {
	s.mu.Lock()
	delete(s.members, h)
	s.mu.Unlock()
}

// FailSetViewer makes the next SetViewer call return err.
func (s *Sim) FailSetViewer(err error) {
	s.mu.Lock()
	s.failSet = err
	s.mu.Unlock()
}

// Head returns the first member of the chain.
func (s *Sim) Head() chain.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Dangling returns the number of messages sent to handles no longer attached.
func (s *Sim) Dangling() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dangling
}

// Forwards returns every recorded Forward call.
func (s *Sim) Forwards() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.forwards...)
}

// ResetForwards clears the forward log.
func (s *Sim) ResetForwards() {
	s.mu.Lock()
	s.forwards = nil
	s.mu.Unlock()
}

// Chain walks the chain from the head. The walk stops at NoHandle, at a
// handle that is not attached (included as the last element), or on a cycle.
func (s *Sim) Chain() []chain.Handle {
	var out []chain.Handle
	seen := make(map[chain.Handle]bool)
	h := s.Head()
	for h != chain.NoHandle && !seen[h] {
		seen[h] = true
		out = append(out, h)
		s.mu.Lock()
		m, ok := s.members[h]
		s.mu.Unlock()
		if !ok {
			break
		}
		h = m.Next()
	}
	return out
}

// Copy simulates a clipboard change: the head is told the content changed.
func (s *Sim) Copy() {
	s.deliver(s.Head(), chain.Changed())
}

// SetViewer implements chain.System.
func (s *Sim) SetViewer(self chain.Handle) (chain.Handle, error) {
	s.mu.Lock()
	if err := s.failSet; err != nil {
		s.failSet = nil
		s.mu.Unlock()
		return chain.NoHandle, err
	}
	prev := s.head
	s.head = self
	s.mu.Unlock()

	// The OS announces the current clipboard to the new viewer before
	// SetViewer returns.
	s.deliver(self, chain.Changed())
	return prev, nil
}

// ChangeChain implements chain.System.
func (s *Sim) ChangeChain(self, next chain.Handle) error {
	s.mu.Lock()
	if s.head == self {
		s.head = next
		s.mu.Unlock()
		return nil
	}
	head := s.head
	s.mu.Unlock()

	s.deliver(head, chain.Leaving(self, next))
	return nil
}

// Forward implements chain.System for an anonymous sender.
func (s *Sim) Forward(target chain.Handle, msg chain.Message) error {
	return s.forwardFrom(chain.NoHandle, target, msg)
}

// For returns a chain.System that attributes forwards to from.
func (s *Sim) For(from chain.Handle) chain.System { return &memberSystem{sim: s, from: from} }

// FailForwardsFrom makes every Forward by from return an error after
// delivering the message.
func (s *Sim) FailForwardsFrom(from chain.Handle) {
	s.mu.Lock()
	s.failSends[from] = true
	s.mu.Unlock()
}

var errSendFailed = errors.New("chaintest: send failed")

func (s *Sim) forwardFrom(from, target chain.Handle, msg chain.Message) error {
	s.mu.Lock()
	s.forwards = append(s.forwards, Delivery{From: from, Target: target, Msg: msg})
	fail := s.failSends[from]
	s.mu.Unlock()

	s.deliver(target, msg)
	if fail {
		return errSendFailed
	}
	return nil
}

func (s *Sim) deliver(target chain.Handle, msg chain.Message) {
	if target == chain.NoHandle {
		return
	}
	s.mu.Lock()
	m, ok := s.members[target]
	if !ok {
		s.dangling++
	}
	s.mu.Unlock()
	if ok {
		m.Dispatch(msg)
	}
}

type memberSystem struct {
	sim  *Sim
	from chain.Handle
}

func (m *memberSystem) SetViewer(self chain.Handle) (chain.Handle, error) {
	return m.sim.SetViewer(self)
}

func (m *memberSystem) ChangeChain(self, next chain.Handle) error {
	return m.sim.ChangeChain(self, next)
}

func (m *memberSystem) Forward(target chain.Handle, msg chain.Message) error {
	return m.sim.forwardFrom(m.from, target, msg)
}
