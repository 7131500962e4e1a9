package analysis

import (
	"context"
	"time"
)

// Fetcher retrieves and cleans the content of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (CrawledContent, error)
}

// Generator turns fetched content into a scored Result.
type Generator interface {
	Analyze(ctx context.Context, content CrawledContent) (Result, error)
}

// LeadSaver persists lead records. Save never fails the caller; it returns
// nil when the record could not be stored.
type LeadSaver interface {
	Save(ctx context.Context, record LeadRecord) *SavedRef
}

// LeadStore is the full persistence contract used by admin reporting.
type LeadStore interface {
	LeadSaver
	Stats(ctx context.Context) Stats
	List(ctx context.Context) ([]LeadRecord, error)
	Ping(ctx context.Context) error
	Close()
}

// Publisher pushes lead notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
