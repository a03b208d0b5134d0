package port

import "context"

// DetectionEntry represents a single auditable detection event.
type DetectionEntry struct {
	Tool         string
	ResourceID   string
	Format       string
	BytesFetched int64
	Columns      int
	DurationMS   int64
	Err          error
}

// DetectionAuditor records detection audit events.
type DetectionAuditor interface {
	Record(ctx context.Context, entry DetectionEntry)
	Close() error
}
