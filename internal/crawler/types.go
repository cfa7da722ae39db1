package crawler

import (
	"net/http"
	"time"
)

// Quote is one record extracted from a listing page. Quotes are never
// mutated after extraction; output rows are derived from them.
type Quote struct {
	Text   string
	Author string
	// Tags keeps page order; duplicates are allowed.
	Tags []string
	// AuthorURL locates the author's own page.
	AuthorURL string
}

// Author is the cross-referenced detail entity shared by many quotes.
type Author struct {
	Name         string
	Description  string
	BornDate     string
	BornLocation string
}

// Key returns the natural identity used for deduplication.
func (a Author) Key() string {
	return a.Name
}

// PageResult is the outcome of extracting one listing page.
type PageResult struct {
	Quotes  []Quote
	HasNext bool
}

// StopReason records why page scanning ended.
type StopReason string

// Reasons a scan can end without an error.
const (
	StopLastPage    StopReason = "last_page"
	StopFetchFailed StopReason = "fetch_failed"
	StopMaxPages    StopReason = "max_pages"
)

// Session is the state of one crawl run. It is created by Crawler.Run and
// discarded once the sinks have consumed it.
type Session struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	// Pages is the number of listing pages fetched and extracted successfully.
	Pages      int
	StopReason StopReason
	Quotes     []Quote
	// Authors are in first-reference order.
	Authors []Author
	// DroppedAuthorURLs lists author pages whose fetch failed.
	DroppedAuthorURLs []string
}

// Row is one flat output row keyed by column name.
type Row map[string]string

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
