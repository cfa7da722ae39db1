package crawler

import (
	"context"
	"fmt"
	"strings"
)

// Dataset names and their column contracts. Column order is part of the
// output format.
const (
	DatasetQuotes  = "quotes"
	DatasetAuthors = "authors"

	// TagSeparator joins a quote's tags into one field.
	TagSeparator = ", "
)

var (
	// QuoteColumns are the columns of the quotes dataset.
	QuoteColumns = []string{"text", "author", "tags"}
	// AuthorColumns are the columns of the authors dataset.
	AuthorColumns = []string{"name", "description", "born_date", "born_location"}
)

// JoinTags flattens tags for output. An empty list renders as "".
func JoinTags(tags []string) string {
	return strings.Join(tags, TagSeparator)
}

// QuoteRows shapes quotes into flat rows, preserving order.
func QuoteRows(quotes []Quote) []Row {
	rows := make([]Row, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, Row{
			"text":   q.Text,
			"author": q.Author,
			"tags":   JoinTags(q.Tags),
		})
	}
	return rows
}

// AuthorRows shapes authors into flat rows, preserving order.
func AuthorRows(authors []Author) []Row {
	rows := make([]Row, 0, len(authors))
	for _, a := range authors {
		rows = append(rows, Row{
			"name":          a.Name,
			"description":   a.Description,
			"born_date":     a.BornDate,
			"born_location": a.BornLocation,
		})
	}
	return rows
}

// Project returns the row's values in column order; absent columns are "".
func Project(row Row, columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = row[col]
	}
	return out
}

// Emit writes both datasets of a session to sink, quotes first.
func Emit(ctx context.Context, sink Sink, s *Session) error {
	if err := sink.Write(ctx, DatasetQuotes, QuoteColumns, QuoteRows(s.Quotes)); err != nil {
		return fmt.Errorf("write %s: %w", DatasetQuotes, err)
	}
	if err := sink.Write(ctx, DatasetAuthors, AuthorColumns, AuthorRows(s.Authors)); err != nil {
		return fmt.Errorf("write %s: %w", DatasetAuthors, err)
	}
	return nil
}

// MultiSink fans every dataset out to each sink in order, stopping at the
// first failure.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, dataset string, columns []string, rows []Row) error {
	for _, s := range m {
		if err := s.Write(ctx, dataset, columns, rows); err != nil {
			return err
		}
	}
	return nil
}
