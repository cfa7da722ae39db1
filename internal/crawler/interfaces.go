package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single retrieval. Every failure is returned as a
// *FetchError; implementations never retry.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageExtractor parses one listing page. Structural mismatches are returned
// as *ExtractionError.
type PageExtractor interface {
	ExtractPage(resp FetchResponse) (PageResult, error)
}

// AuthorExtractor parses an author's own page.
type AuthorExtractor interface {
	ExtractAuthor(resp FetchResponse) (Author, error)
}

// Sink persists one dataset: a header of columns followed by one row per item.
type Sink interface {
	Write(ctx context.Context, dataset string, columns []string, rows []Row) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// IDGenerator produces session IDs.
type IDGenerator interface {
	NewID() (string, error)
}
