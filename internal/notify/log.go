package notify

import "log/slog"

// LogSubscriber writes every event to the default slog logger: successes at
// INFO, failures at WARN or ERROR.
type LogSubscriber struct{}

func (LogSubscriber) ID() string { return "log" }

func (LogSubscriber) Send(e Event) {
	switch e.Kind {
	case SnapshotPersisted:
		slog.Info(e.Label, "path", e.Path)
	case ExtractionFailed:
		slog.Warn("clipboard read failed", "reason", e.Reason)
	case PersistenceFailed:
		slog.Error("snapshot not saved, clipboard left unchanged", "reason", e.Reason)
	case PublishFailed:
		slog.Error("snapshot saved but path not copied", "path", e.Path, "reason", e.Reason)
	default:
		slog.Warn("unknown event", "kind", e.Kind, "label", e.Label)
	}
}
