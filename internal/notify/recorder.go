package notify

import (
	"sync"
	"time"
)

// Recorder keeps the most recent saved path and a count per event kind.
type Recorder struct {
	mu       sync.RWMutex
	last     Event
	hasLast  bool
	counts   map[Kind]uint64
	lastFail Event
	started  time.Time
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{counts: make(map[Kind]uint64), started: time.Now()}
}

func (r *Recorder) ID() string { return "recorder" }

func (r *Recorder) Send(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[e.Kind]++
	if e.Kind == SnapshotPersisted {
		r.last = e
		r.hasLast = true
	} else {
		r.lastFail = e
	}
}

// Last returns the most recent SnapshotPersisted event.
func (r *Recorder) Last() (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.hasLast
}

// LastFailure returns the most recent failure event, if any.
func (r *Recorder) LastFailure() (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastFail, r.lastFail.Kind != ""
}

// Count returns how many events of kind k were seen.
func (r *Recorder) Count(k Kind) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[k]
}

// Started is when the recorder was created.
func (r *Recorder) Started() time.Time { return r.started }
