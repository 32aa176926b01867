package audit

import "context"

// Recorder persists audit entries.
type Recorder interface {
	// Record writes one entry. Implementations assign Entry.ID and
	// Entry.CreatedAt when unset.
	Record(ctx context.Context, entry *Entry) error

	// Close flushes and releases any resources.
	Close() error
}

// NopRecorder discards all entries. Used in tests and when the trail is
// disabled by configuration.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, entry *Entry) error { return nil }
func (NopRecorder) Close() error                                   { return nil }
