package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

func TestFetchReturnsBodyOnSuccess(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "quotes-test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><div class=quote></div></html>"))
	}))
	defer ts.Close()

	f := New(Config{UserAgent: "quotes-test-agent", Timeout: time.Second}, nil, nil)
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL + "/page/1/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ts.URL+"/page/1/", resp.URL)
	assert.Contains(t, string(resp.Body), "quote")
	assert.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	f := New(Config{Timeout: time.Second}, nil, nil)
	for range 2 {
		_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL + "/author/ada/"})
		require.NoError(t, err)
	}
}

func TestFetchClassifiesNonSuccessStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	f := New(Config{Timeout: time.Second}, nil, nil)
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL + "/page/2/"})
	require.Error(t, err)

	var fetchErr *crawler.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, ts.URL+"/page/2/", fetchErr.Target)
}

func TestFetchTimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer ts.Close()
	defer close(release)

	f := New(Config{Timeout: 50 * time.Millisecond}, nil, nil)
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: ts.URL})
	require.Error(t, err)
	assert.True(t, crawler.IsFetchError(err))
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	target := ts.URL
	ts.Close()

	f := New(Config{Timeout: time.Second}, nil, nil)
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: target})
	require.Error(t, err)
	assert.True(t, crawler.IsFetchError(err))
}

type denyWaiter struct{ err error }

func (d denyWaiter) Wait(context.Context, string) error { return d.err }

func TestFetchWaiterFailureIsFetchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limit wait: context deadline exceeded")
	f := New(Config{}, denyWaiter{err: boom}, nil)
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "http://127.0.0.1:1/"})
	require.ErrorIs(t, err, boom)
	assert.True(t, crawler.IsFetchError(err))
}

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second}, nil, nil)
	var result crawler.FetchResponse
	var fetchErr *crawler.FetchError
	collector := f.buildCollector(crawler.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0), &result, &fetchErr)
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.True(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.AllowURLRevisit)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr *crawler.FetchError

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	require.NotNil(t, fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, "https://example.com", fetchErr.Target)

	hooks.onError(nil, nil)
	assert.Equal(t, 0, fetchErr.StatusCode)
	assert.EqualError(t, fetchErr.Err, "unknown colly error")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	assert.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
