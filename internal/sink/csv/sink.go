// Package csv provides a crawler.Sink that renders each dataset as a CSV
// file and uploads it to a blob store.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"sync"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/hash/sha256"
)

// Artifact describes one uploaded dataset file.
type Artifact struct {
	Dataset string `json:"dataset"`
	URI     string `json:"uri"`
	Rows    int    `json:"rows"`
	SHA256  string `json:"sha256"`
}

// Sink writes <dir>/<dataset>.csv through a BlobStore.
type Sink struct {
	store crawler.BlobStore
	dir   string

	mu        sync.Mutex
	artifacts []Artifact
}

// New returns a sink that uploads under dir (which may be empty).
func New(store crawler.BlobStore, dir string) (*Sink, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Sink{store: store, dir: dir}, nil
}

// Write emits a header row of columns followed by each row projected onto
// columns. Fields are quoted only when needed.
func (s *Sink) Write(ctx context.Context, dataset string, columns []string, rows []crawler.Row) error {
	if dataset == "" {
		return fmt.Errorf("dataset name is required")
	}
	body, err := Encode(columns, rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", dataset, err)
	}

	objectPath := path.Join(s.dir, dataset+".csv")
	uri, err := s.store.PutObject(ctx, objectPath, "text/csv; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectPath, err)
	}

	s.mu.Lock()
	s.artifacts = append(s.artifacts, Artifact{
		Dataset: dataset,
		URI:     uri,
		Rows:    len(rows),
		SHA256:  sha256.Sum(body),
	})
	s.mu.Unlock()
	return nil
}

// Artifacts returns the uploaded files in write order.
func (s *Sink) Artifacts() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Artifact(nil), s.artifacts...)
}

// Encode renders a header of columns and one record per row, using \n line
// endings.
func Encode(columns []string, rows []crawler.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := w.Write(crawler.Project(row, columns)); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}
