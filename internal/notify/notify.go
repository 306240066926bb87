// Package notify carries one-way completion and failure events from the
// capture pipeline to whoever presents or records them. Publishers never see
// subscriber state; subscribers never call back into the pipeline.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	SnapshotPersisted Kind = "snapshot_persisted"
	ExtractionFailed  Kind = "extraction_failed"
	PersistenceFailed Kind = "persistence_failed"
	PublishFailed     Kind = "publish_failed"
)

// Event is delivered to every subscriber.
type Event struct {
	Kind   Kind
	Label  string // short human-readable title
	Path   string // saved file, when there is one
	Reason string // failure description
	Time   time.Time
}

// Subscriber is anything that consumes events from the hub.
type Subscriber interface {
	ID() string
	// Send delivers an event. Must be non-blocking.
	Send(Event)
}

// Hub fans events out to registered subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
	now  func() time.Time
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		subs: make(map[string]Subscriber),
		now:  time.Now,
	}
}

// Register adds a subscriber, replacing any with the same ID.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	total := len(h.subs)
	h.mu.Unlock()

	slog.Debug("event subscriber registered", "subscriber", s.ID(), "total", total)
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID())
	h.mu.Unlock()
}

// Publish stamps e with the current time if it has none and delivers it to
// every subscriber.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.Send(e)
	}
}

// Func adapts a function into a Subscriber.
type Func struct {
	Name string
	Fn   func(Event)
}

func (f Func) ID() string   { return f.Name }
func (f Func) Send(e Event) { f.Fn(e) }
