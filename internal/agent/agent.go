// Package agent wires the clipboard pipeline together: a content change seen
// by the chain handler is extracted, persisted, and announced.
package agent

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.klb.dev/clip2web/internal/capture"
	"go.klb.dev/clip2web/internal/chain"
	"go.klb.dev/clip2web/internal/clip"
	"go.klb.dev/clip2web/internal/message"
	"go.klb.dev/clip2web/internal/notify"
	"go.klb.dev/clip2web/internal/sink"
	"go.klb.dev/clip2web/internal/viewer"
)

// Options configures an Agent.
type Options struct {
	Label   string // completion event title; empty uses sink.DefaultLabel
	Version string // reported by Status
}

// Agent owns one capture pipeline and, once bound, one chain membership.
type Agent struct {
	backend   clip.Backend
	store     sink.Store
	extractor *capture.Extractor
	sink      *sink.Sink
	events    *notify.Hub
	recorder  *notify.Recorder
	version   string

	// capturing serializes pipeline runs from the chain and from SNAP
	// requests.
	capturing sync.Mutex

	mu      sync.Mutex
	handler *chain.Handler
}

// New builds an agent reading from backend and saving into store. Events are
// logged and recorded for the status surface; callers may register further
// subscribers on Events.
func New(backend clip.Backend, store sink.Store, opts Options) *Agent {
	events := notify.New()
	recorder := notify.NewRecorder()
	events.Register(notify.LogSubscriber{})
	events.Register(recorder)

	return &Agent{
		backend:   backend,
		store:     store,
		extractor: capture.NewExtractor(backend),
		sink:      sink.New(store, backend, events, opts.Label),
		events:    events,
		recorder:  recorder,
		version:   opts.Version,
	}
}

// Events returns the hub completion and failure events are published on.
func (a *Agent) Events() *notify.Hub { return a.events }

// Bind creates the chain handler for ep. It is passed to viewer.Run.
func (a *Agent) Bind(ep viewer.Endpoint) viewer.Session {
	h := chain.New(ep, ep.Self(), a.HandleChange)
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
	return h
}

// HandleChange runs the pipeline for one clipboard change. Failures are
// reported as events and never propagate to the chain.
//
// A change that arrives while a capture is running is skipped: it is either
// the path that capture just wrote or a change a SNAP request is already
// reading.
func (a *Agent) HandleChange() {
	if !a.capturing.TryLock() {
		slog.Debug("capture in progress, skipping change")
		return
	}
	defer a.capturing.Unlock()
	if _, _, err := a.capture(); err != nil {
		slog.Debug("clipboard change not captured", "err", err)
	}
}

// Snap runs one pass over the current clipboard outside the chain. ok is
// false when the clipboard holds no image.
func (a *Agent) Snap() (ref sink.Reference, ok bool, err error) {
	a.capturing.Lock()
	defer a.capturing.Unlock()
	return a.capture()
}

func (a *Agent) capture() (sink.Reference, bool, error) {
	snap, err := a.extractor.Extract()
	if err != nil {
		a.events.Publish(notify.Event{
			Kind:   notify.ExtractionFailed,
			Label:  "Clip not captured",
			Reason: err.Error(),
		})
		return sink.Reference{}, false, err
	}
	if snap == nil {
		return sink.Reference{}, false, nil
	}

	ref, err := a.sink.Accept(snap)
	return ref, ref.Path != "", err
}

// Last returns the most recently saved snapshot, if any.
func (a *Agent) Last() (notify.Event, bool) { return a.recorder.Last() }

// Status reports chain membership and pipeline counters.
func (a *Agent) Status() message.Status {
	st := message.Status{
		Version:             a.version,
		PID:                 os.Getpid(),
		Backend:             a.backend.Name(),
		Started:             a.recorder.Started(),
		Chain:               message.ChainInfo{State: chain.Unregistered.String()},
		Saved:               a.recorder.Count(notify.SnapshotPersisted),
		ExtractionFailures:  a.recorder.Count(notify.ExtractionFailed),
		PersistenceFailures: a.recorder.Count(notify.PersistenceFailed),
		PublishFailures:     a.recorder.Count(notify.PublishFailed),
	}
	if d, ok := a.store.(interface{ Dir() string }); ok {
		st.Dir = d.Dir()
	}

	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h != nil {
		cs := h.Status()
		st.Chain = message.ChainInfo{
			State:    cs.State.String(),
			Self:     handleString(cs.Self),
			Next:     handleString(cs.Next),
			Changes:  cs.Changes,
			Forwards: cs.Forwards,
			Adopted:  cs.Adopted,
		}
	}

	if e, ok := a.recorder.Last(); ok {
		st.Last = eventInfo(e)
	}
	if e, ok := a.recorder.LastFailure(); ok {
		st.LastFailure = eventInfo(e)
	}
	return st
}

// Handle answers a request from the IPC socket.
func (a *Agent) Handle(req *message.Message) *message.Message {
	switch req.Type {
	case message.TypeStatus:
		st := a.Status()
		return &message.Message{Type: message.TypeStatusResponse, Status: &st}
	case message.TypeSnap:
		ref, ok, err := a.Snap()
		switch {
		case err != nil:
			return message.Errorf("snap: %v", err)
		case !ok:
			return message.Errorf("clipboard holds no image")
		}
		return &message.Message{Type: message.TypeSnapResponse, Path: ref.Path}
	case message.TypeLast:
		resp := &message.Message{Type: message.TypeLastResponse}
		if e, ok := a.recorder.Last(); ok {
			resp.Last = eventInfo(e)
		}
		return resp
	default:
		return message.Errorf("unsupported request %q", req.Type)
	}
}

func eventInfo(e notify.Event) *message.EventInfo {
	return &message.EventInfo{
		Kind:   string(e.Kind),
		Label:  e.Label,
		Path:   e.Path,
		Reason: e.Reason,
		Time:   e.Time,
	}
}

func handleString(h chain.Handle) string {
	if h == chain.NoHandle {
		return ""
	}
	return fmt.Sprintf("%#x", uintptr(h))
}
