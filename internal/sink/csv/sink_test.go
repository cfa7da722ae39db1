package csv

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/hash/sha256"
	"github.com/JakeFAU/quotes-crawler/internal/storage/memory"
)

func TestEncodeQuotesTagsAndSpecialCharacters(t *testing.T) {
	t.Parallel()

	rows := crawler.QuoteRows([]crawler.Quote{
		{Text: "“Hello, world.”", Author: "Ada", Tags: []string{"a", "b", "c"}},
		{Text: `She said "no"`, Author: "Bob"},
	})
	got, err := Encode(crawler.QuoteColumns, rows)
	require.NoError(t, err)
	assert.Equal(t,
		"text,author,tags\n"+
			"\"“Hello, world.”\",Ada,\"a, b, c\"\n"+
			"\"She said \"\"no\"\"\",Bob,\n",
		string(got))
}

func TestEncodeEmptyDatasetHasHeaderOnly(t *testing.T) {
	t.Parallel()

	got, err := Encode(crawler.AuthorColumns, nil)
	require.NoError(t, err)
	assert.Equal(t, "name,description,born_date,born_location\n", string(got))
}

func TestSinkUploadsUnderDirectory(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	sink, err := New(store, "crawls/session-1")
	require.NoError(t, err)

	session := &crawler.Session{
		Quotes:  []crawler.Quote{{Text: "q", Author: "Ada", Tags: []string{"x"}}},
		Authors: []crawler.Author{{Name: "Ada", Description: "d", BornDate: "1815", BornLocation: "London"}},
	}
	require.NoError(t, crawler.Emit(context.Background(), sink, session))

	assert.Equal(t, []string{"crawls/session-1/authors.csv", "crawls/session-1/quotes.csv"}, store.Paths())
	quotes, ok := store.Object("crawls/session-1/quotes.csv")
	require.True(t, ok)
	assert.Equal(t, "text,author,tags\nq,Ada,x\n", string(quotes))

	authors, ok := store.Object("crawls/session-1/authors.csv")
	require.True(t, ok)
	assert.Equal(t, []Artifact{
		{Dataset: crawler.DatasetQuotes, URI: "memory://crawls/session-1/quotes.csv", Rows: 1, SHA256: sha256.Sum(quotes)},
		{Dataset: crawler.DatasetAuthors, URI: "memory://crawls/session-1/authors.csv", Rows: 1, SHA256: sha256.Sum(authors)},
	}, sink.Artifacts())
}

type failingStore struct{ err error }

func (f failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", f.err
}

func TestSinkPropagatesUploadFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("bucket gone")
	sink, err := New(failingStore{err: boom}, "")
	require.NoError(t, err)

	err = sink.Write(context.Background(), crawler.DatasetQuotes, crawler.QuoteColumns, nil)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, sink.Artifacts())
}

func TestNewRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "x")
	require.Error(t, err)

	sink, err := New(memory.NewBlobStore(), "")
	require.NoError(t, err)
	require.Error(t, sink.Write(context.Background(), "", nil, nil))
}
