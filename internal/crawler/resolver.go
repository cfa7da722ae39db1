package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Resolver turns author links into Authors, fetching each distinct author at
// most once per session. A Resolver must not outlive its session.
type Resolver struct {
	fetcher   Fetcher
	extractor AuthorExtractor
	logger    *zap.Logger
	group     singleflight.Group

	mu    sync.Mutex
	byURL map[string]string
	byKey map[string]Author
	order []string
}

// NewResolver returns an empty, session-scoped Resolver.
func NewResolver(fetcher Fetcher, extractor AuthorExtractor, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
		byURL:     make(map[string]string),
		byKey:     make(map[string]Author),
	}
}

// Resolve returns the Author behind ref. A link that was already resolved is
// served from the cache without fetching. Fetch failures come back as
// *FetchError and are not cached; extraction failures are *ExtractionError.
// Concurrent calls for the same link share one fetch.
func (r *Resolver) Resolve(ctx context.Context, ref string) (Author, error) {
	norm := normalizeRef(ref)
	if author, ok := r.lookup(norm); ok {
		metrics.ObserveAuthor("cached")
		return author, nil
	}

	v, err, _ := r.group.Do(norm, func() (any, error) {
		if author, ok := r.lookup(norm); ok {
			return author, nil
		}
		resp, err := r.fetcher.Fetch(ctx, FetchRequest{URL: ref})
		if err != nil {
			if !IsFetchError(err) {
				err = &FetchError{Target: ref, Err: err}
			}
			return nil, err
		}
		author, err := r.extractor.ExtractAuthor(resp)
		if err != nil {
			var extractErr *ExtractionError
			if errors.As(err, &extractErr) && extractErr.Target == "" {
				extractErr.Target = ref
			}
			return nil, err
		}
		return r.store(norm, author), nil
	})
	if err != nil {
		return Author{}, err
	}
	return v.(Author), nil
}

// Authors returns the cached authors in insertion order.
func (r *Resolver) Authors() []Author {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Author, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// ResolveAll resolves every distinct author link in quotes using up to
// concurrency workers. Authors come back in first-reference order regardless
// of completion order. Links whose fetch failed are dropped and returned
// separately; any other failure aborts the whole call.
func (r *Resolver) ResolveAll(ctx context.Context, quotes []Quote, concurrency int) ([]Author, []string, error) {
	refs := distinctRefs(quotes)
	if concurrency < 1 {
		concurrency = 1
	}

	resolved := make([]Author, len(refs))
	ok := make([]bool, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			author, err := r.Resolve(gctx, ref)
			if err == nil {
				resolved[i] = author
				ok[i] = true
				return nil
			}
			if !IsFetchError(err) {
				return err
			}
			if gctx.Err() != nil {
				// Another worker failed or the caller canceled; the real
				// cause is reported by g.Wait or ctx.Err below.
				return nil
			}
			metrics.ObserveAuthor("dropped")
			r.logger.Warn("author fetch failed; dropping author", zap.String("url", ref), zap.Error(err))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("resolve canceled: %w", err)
	}

	authors := make([]Author, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	var dropped []string
	for i, ref := range refs {
		if !ok[i] {
			dropped = append(dropped, ref)
			continue
		}
		key := resolved[i].Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		authors = append(authors, resolved[i])
	}
	return authors, dropped, nil
}

func (r *Resolver) lookup(norm string) (Author, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byURL[norm]
	if !ok {
		return Author{}, false
	}
	return r.byKey[key], true
}

// store inserts author unless its key is already cached, in which case the
// cached instance wins and the new copy is discarded.
func (r *Resolver) store(norm string, author Author) Author {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := author.Key()
	r.byURL[norm] = key
	if existing, ok := r.byKey[key]; ok {
		metrics.ObserveAuthor("cached")
		return existing
	}
	r.byKey[key] = author
	r.order = append(r.order, key)
	metrics.ObserveAuthor("fetched")
	return author
}

// distinctRefs returns the non-empty author links of quotes, first occurrence
// first, collapsing links that normalize to the same URL.
func distinctRefs(quotes []Quote) []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, q := range quotes {
		if q.AuthorURL == "" {
			continue
		}
		norm := normalizeRef(q.AuthorURL)
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		refs = append(refs, q.AuthorURL)
	}
	return refs
}

func normalizeRef(ref string) string {
	norm, err := NormalizeURL(ref)
	if err != nil {
		return ref
	}
	return norm
}
