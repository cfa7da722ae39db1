package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinTags(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a, b, c", JoinTags([]string{"a", "b", "c"}))
	assert.Equal(t, "", JoinTags(nil))
	assert.Equal(t, "", JoinTags([]string{}))
	assert.Equal(t, "love, love", JoinTags([]string{"love", "love"}))
}

func TestQuoteRowsProjectsInColumnOrder(t *testing.T) {
	t.Parallel()

	rows := QuoteRows([]Quote{
		{Text: "first", Author: "Ada", Tags: []string{"a", "b", "c"}, AuthorURL: "ignored"},
		{Text: "second", Author: "Bob"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"first", "Ada", "a, b, c"}, Project(rows[0], QuoteColumns))
	assert.Equal(t, []string{"second", "Bob", ""}, Project(rows[1], QuoteColumns))
	_, leaked := rows[0]["AuthorURL"]
	assert.False(t, leaked)
}

func TestAuthorRows(t *testing.T) {
	t.Parallel()

	rows := AuthorRows([]Author{{Name: "Ada", Description: "d", BornDate: "1815", BornLocation: "London"}})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Ada", "d", "1815", "London"}, Project(rows[0], AuthorColumns))
}

func TestProjectFillsMissingColumns(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"x", ""}, Project(Row{"a": "x", "z": "dropped"}, []string{"a", "b"}))
}

func TestEmitWritesQuotesThenAuthors(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	session := &Session{
		Quotes:  []Quote{{Text: "q", Author: "Ada"}},
		Authors: []Author{{Name: "Ada"}},
	}
	require.NoError(t, Emit(context.Background(), sink, session))
	require.Len(t, sink.writes, 2)
	assert.Equal(t, DatasetQuotes, sink.writes[0].dataset)
	assert.Equal(t, QuoteColumns, sink.writes[0].columns)
	assert.Equal(t, DatasetAuthors, sink.writes[1].dataset)
	assert.Equal(t, AuthorColumns, sink.writes[1].columns)
}

func TestMultiSinkStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	first := &recordingSink{}
	failing := &recordingSink{err: boom}
	last := &recordingSink{}

	err := MultiSink{first, failing, last}.Write(context.Background(), DatasetQuotes, QuoteColumns, nil)
	require.ErrorIs(t, err, boom)
	assert.Len(t, first.writes, 1)
	assert.Empty(t, last.writes)
}
