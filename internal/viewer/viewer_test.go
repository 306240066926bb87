package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.klb.dev/clip2web/internal/chain"
	"go.klb.dev/clip2web/internal/chain/chaintest"
)

type fakeSession struct {
	mu          sync.Mutex
	registerErr error
	registered  int
	dispatched  []chain.Message
	left        int
	seen        chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{seen: make(chan struct{}, 16)}
}

func (f *fakeSession) Register() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered++
	return f.registerErr
}

func (f *fakeSession) Dispatch(m chain.Message) {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, m)
	f.mu.Unlock()
	f.seen <- struct{}{}
}

func (f *fakeSession) Unregister() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left++
	return nil
}

func (f *fakeSession) counts() (registered, dispatched, left int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered, len(f.dispatched), f.left
}

func TestPumpDeliversTicksAndLeaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	watch := make(chan struct{})
	s := newFakeSession()

	done := make(chan error, 1)
	go func() {
		done <- pump(ctx, soloEndpoint{}, watch, func(Endpoint) Session { return s })
	}()

	for i := 0; i < 3; i++ {
		watch <- struct{}{}
		select {
		case <-s.seen:
		case <-time.After(time.Second):
			t.Fatalf("tick %d not dispatched", i)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("pump: %v", err)
	}

	reg, disp, left := s.counts()
	if reg != 1 || disp != 3 || left != 1 {
		t.Fatalf("registered=%d dispatched=%d left=%d", reg, disp, left)
	}
	for _, m := range s.dispatched {
		if m.Kind != chain.ContentChanged {
			t.Fatalf("dispatched %v", m.Kind)
		}
	}
}

func TestPumpRegisterFailure(t *testing.T) {
	s := newFakeSession()
	s.registerErr = errors.New("denied")

	err := pump(context.Background(), soloEndpoint{}, nil, func(Endpoint) Session { return s })
	if !errors.Is(err, s.registerErr) {
		t.Fatalf("err = %v", err)
	}
	if _, disp, left := s.counts(); disp != 0 || left != 1 {
		t.Fatalf("dispatched=%d left=%d", disp, left)
	}
}

func TestSoloChainWithHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	watch := make(chan struct{})
	changes := make(chan struct{}, 4)

	var h *chain.Handler
	done := make(chan error, 1)
	go func() {
		done <- pump(ctx, soloEndpoint{}, watch, func(ep Endpoint) Session {
			h = chain.New(ep, ep.Self(), func() { changes <- struct{}{} })
			return h
		})
	}()

	watch <- struct{}{}
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("change not handled")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	st := h.Status()
	if st.State != chain.Detached || st.Next != chain.NoHandle || st.Self != soloHandle {
		t.Fatalf("status = %+v", st)
	}
	if st.Changes != 1 {
		t.Fatalf("changes = %d, want 1", st.Changes)
	}
}

// faultyEndpoint panics when relaying a change once its handler is active.
type faultyEndpoint struct {
	chain.System
	self chain.Handle
	h    **chain.Handler
}

func (e faultyEndpoint) Self() chain.Handle { return e.self }

func (e faultyEndpoint) Forward(target chain.Handle, msg chain.Message) error {
	if msg.Kind == chain.ContentChanged && *e.h != nil && (*e.h).State() == chain.Active {
		panic("send failed")
	}
	return e.System.Forward(target, msg)
}

func TestPumpLeavesChainOnPanic(t *testing.T) {
	sim := chaintest.New()
	other := sim.NewHandle()
	oh := chain.New(sim.For(other), other, func() {})
	sim.Attach(other, oh)
	if err := oh.Register(); err != nil {
		t.Fatal(err)
	}

	self := sim.NewHandle()
	var h *chain.Handler
	ep := faultyEndpoint{System: sim.For(self), self: self, h: &h}
	watch := make(chan struct{})
	registered := make(chan struct{})

	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		_ = pump(context.Background(), ep, watch, func(ep Endpoint) Session {
			h = chain.New(ep, ep.Self(), func() {})
			sim.Attach(self, h)
			return registeredSession{h, registered}
		})
	}()

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("session not registered")
	}
	if got := sim.Chain(); len(got) != 2 || got[0] != self {
		t.Fatalf("chain before panic = %v", got)
	}

	watch <- struct{}{}
	select {
	case r := <-done:
		if r == nil {
			t.Fatal("pump returned without panicking")
		}
	case <-time.After(time.Second):
		t.Fatal("pump did not exit")
	}

	if h.State() != chain.Detached {
		t.Fatalf("state = %v, want detached", h.State())
	}
	if got := sim.Chain(); len(got) != 1 || got[0] != other {
		t.Fatalf("chain after panic = %v, want [%v]", got, other)
	}
}

// registeredSession reports when Register has returned.
type registeredSession struct {
	*chain.Handler
	registered chan struct{}
}

func (s registeredSession) Register() error {
	err := s.Handler.Register()
	close(s.registered)
	return err
}

func TestPumpSurvivesPanickingChangeHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	watch := make(chan struct{})
	calls := make(chan struct{}, 4)

	var h *chain.Handler
	done := make(chan error, 1)
	go func() {
		done <- pump(ctx, soloEndpoint{}, watch, func(ep Endpoint) Session {
			h = chain.New(ep, ep.Self(), func() {
				calls <- struct{}{}
				panic("bad image")
			})
			return h
		})
	}()

	for i := 0; i < 2; i++ {
		watch <- struct{}{}
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("change %d not handled", i)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if st := h.Status(); st.State != chain.Detached || st.Changes != 2 {
		t.Fatalf("status = %+v", st)
	}
}
