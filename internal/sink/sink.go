// Package sink persists clipboard snapshots and publishes the saved path
// back to the clipboard.
package sink

import (
	"fmt"
	"time"

	"go.klb.dev/clip2web/internal/capture"
	"go.klb.dev/clip2web/internal/notify"
)

// DefaultLabel titles the completion event.
const DefaultLabel = "Clip saved!"

// Reference points at a saved snapshot.
type Reference struct {
	Path      string
	CreatedAt time.Time
}

// PersistError reports a failed snapshot write. No file is left behind and
// the clipboard is not touched.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// Store saves snapshots durably.
type Store interface {
	Save(*capture.Snapshot) (Reference, error)
}

// ClipboardWriter replaces the clipboard with text.
type ClipboardWriter interface {
	WriteText(string) error
}

// Publisher receives completion and failure events.
type Publisher interface {
	Publish(notify.Event)
}

// Sink saves snapshots and swaps the clipboard content for the saved path.
type Sink struct {
	store     Store
	clipboard ClipboardWriter
	events    Publisher
	label     string
}

// New returns a Sink. An empty label uses DefaultLabel.
func New(store Store, clipboard ClipboardWriter, events Publisher, label string) *Sink {
	if label == "" {
		label = DefaultLabel
	}
	return &Sink{store: store, clipboard: clipboard, events: events, label: label}
}

// Accept saves snap and, only if that succeeded, writes the path to the
// clipboard. The resulting clipboard change is plain text and is ignored by
// the extractor, so the pipeline does not loop.
func (s *Sink) Accept(snap *capture.Snapshot) (Reference, error) {
	ref, err := s.store.Save(snap)
	if err != nil {
		s.events.Publish(notify.Event{
			Kind:   notify.PersistenceFailed,
			Label:  "Clip not saved",
			Reason: err.Error(),
		})
		return Reference{}, err
	}

	if err := s.clipboard.WriteText(ref.Path); err != nil {
		s.events.Publish(notify.Event{
			Kind:   notify.PublishFailed,
			Label:  "Clip saved, path not copied",
			Path:   ref.Path,
			Reason: err.Error(),
		})
		return ref, fmt.Errorf("copy path to clipboard: %w", err)
	}

	s.events.Publish(notify.Event{
		Kind:  notify.SnapshotPersisted,
		Label: s.label,
		Path:  ref.Path,
		Time:  ref.CreatedAt,
	})
	return ref, nil
}
