package crawler

import (
	"context"
	"net/http"
	"sync"
)

// fakeFetcher serves canned bodies by URL and records every call.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	before func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fail: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, request.URL)
	err := f.fail[request.URL]
	hook := f.before
	f.mu.Unlock()

	if hook != nil {
		hook(request.URL)
	}
	if err != nil {
		return FetchResponse{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return FetchResponse{}, &FetchError{Target: request.URL, Err: ctxErr}
	}
	return FetchResponse{
		URL:        request.URL,
		StatusCode: http.StatusOK,
		Body:       []byte(request.URL),
	}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) CallCount(url string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == url {
			n++
		}
	}
	return n
}

// fakePages maps a page URL to its extraction result.
type fakePages map[string]PageResult

func (p fakePages) ExtractPage(resp FetchResponse) (PageResult, error) {
	res, ok := p[resp.URL]
	if !ok {
		return PageResult{}, &ExtractionError{Target: resp.URL, Field: ".quote"}
	}
	return res, nil
}

// fakeAuthors maps an author URL to its extraction result.
type fakeAuthors map[string]Author

func (a fakeAuthors) ExtractAuthor(resp FetchResponse) (Author, error) {
	author, ok := a[resp.URL]
	if !ok {
		return Author{}, &ExtractionError{Field: ".author-title"}
	}
	return author, nil
}

type staticIDs string

func (s staticIDs) NewID() (string, error) {
	return string(s), nil
}

// recordingSink keeps every Write call.
type recordingSink struct {
	writes []sinkWrite
	err    error
}

type sinkWrite struct {
	dataset string
	columns []string
	rows    []Row
}

func (s *recordingSink) Write(_ context.Context, dataset string, columns []string, rows []Row) error {
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, sinkWrite{dataset: dataset, columns: columns, rows: rows})
	return nil
}
