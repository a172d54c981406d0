package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves one page. The direct (HTTP) and rendered (headless browser) strategies each
// implement it.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector inspects a direct fetch and reports whether the page must be rendered.
type HeadlessDetector interface {
	ShouldPromote(html string) bool
}

// RateLimiter blocks until a request to url's host is polite.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore persists exported JSON documents under slash separated names and returns their URI.
// Existing objects are never replaced; ErrObjectExists is returned instead.
type BlobStore interface {
	PutObject(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// Publisher announces newly stored articles on a topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator assigns ids to new article records.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock is the source of "now" for dates, fetch stamps and export names.
type Clock interface {
	Now() time.Time
}

// QueueItem is one configured source waiting for a worker.
type QueueItem struct {
	Source     SourceDefinition
	EnqueuedAt time.Time
}

// Queue hands sources to workers. Dequeue returns ErrQueueClosed once a closed queue is empty.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}
