package crawler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Config holds the settings for a crawl session.
type Config struct {
	// BaseURL is the listing root; page n lives at {BaseURL}/page/{n}/.
	BaseURL string
	// MaxPages caps the scan as a safety net. Zero means no cap; the source's
	// next-page marker decides termination.
	MaxPages int
	// AuthorConcurrency bounds parallel author resolution. Values below 1 mean 1.
	AuthorConcurrency int
}

type scanState int

const (
	stateScanning scanState = iota
	stateDone
)

// Crawler drives the page-index loop and author resolution for one run.
type Crawler struct {
	cfg     Config
	fetcher Fetcher
	pages   PageExtractor
	authors AuthorExtractor
	ids     IDGenerator
	now     func() time.Time
	logger  *zap.Logger
}

// New constructs a Crawler. ids may be nil, in which case session IDs are
// derived from the start time.
func New(
	cfg Config,
	fetcher Fetcher,
	pages PageExtractor,
	authors AuthorExtractor,
	ids IDGenerator,
	logger *zap.Logger,
) (*Crawler, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if pages == nil || authors == nil {
		return nil, errors.New("page and author extractors are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		pages:   pages,
		authors: authors,
		ids:     ids,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}, nil
}

// Run scans every listing page once, resolves the referenced authors, and
// returns the session. A failed page fetch ends the scan early but is not an
// error; an *ExtractionError aborts the run.
func (c *Crawler) Run(ctx context.Context) (*Session, error) {
	session, err := c.newSession()
	if err != nil {
		return nil, err
	}
	logger := c.logger.With(zap.String("session_id", session.ID))
	logger.Info("crawl started", zap.String("base_url", c.cfg.BaseURL))

	if err := c.scan(ctx, session, logger); err != nil {
		return nil, err
	}

	resolver := NewResolver(c.fetcher, c.authors, logger)
	authors, dropped, err := resolver.ResolveAll(ctx, session.Quotes, c.cfg.AuthorConcurrency)
	if err != nil {
		return nil, fmt.Errorf("resolve authors: %w", err)
	}
	session.Authors = authors
	session.DroppedAuthorURLs = dropped
	session.FinishedAt = c.now()

	logger.Info("crawl finished",
		zap.Int("pages", session.Pages),
		zap.Int("quotes", len(session.Quotes)),
		zap.Int("authors", len(session.Authors)),
		zap.Int("dropped_authors", len(session.DroppedAuthorURLs)),
		zap.String("stop_reason", string(session.StopReason)),
		zap.Duration("elapsed", session.FinishedAt.Sub(session.StartedAt)),
	)
	return session, nil
}

func (c *Crawler) newSession() (*Session, error) {
	started := c.now()
	id := strconv.FormatInt(started.UnixNano(), 10)
	if c.ids != nil {
		generated, err := c.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
		id = generated
	}
	return &Session{ID: id, StartedAt: started}, nil
}

// scan visits pages 1..n in order, each exactly once.
func (c *Crawler) scan(ctx context.Context, s *Session, logger *zap.Logger) error {
	state := stateScanning
	page := 1
	for state == stateScanning {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan canceled at page %d: %w", page, err)
		}
		if c.cfg.MaxPages > 0 && page > c.cfg.MaxPages {
			logger.Warn("max pages reached before last page", zap.Int("max_pages", c.cfg.MaxPages))
			s.StopReason = StopMaxPages
			state = stateDone
			continue
		}

		target := PageURL(c.cfg.BaseURL, page)
		resp, err := c.fetcher.Fetch(ctx, FetchRequest{URL: target})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("scan canceled at page %d: %w", page, ctxErr)
			}
			metrics.ObservePage("fetch_error")
			logger.Warn("page fetch failed; ending scan",
				zap.Int("page", page),
				zap.String("url", target),
				zap.Error(err),
			)
			s.StopReason = StopFetchFailed
			state = stateDone
			continue
		}

		result, err := c.pages.ExtractPage(resp)
		if err != nil {
			metrics.ObservePage("extraction_error")
			var extractErr *ExtractionError
			if errors.As(err, &extractErr) && extractErr.Target == "" {
				extractErr.Target = target
			}
			return fmt.Errorf("page %d: %w", page, err)
		}

		metrics.ObservePage("ok")
		metrics.ObserveQuotes(len(result.Quotes))
		s.Quotes = append(s.Quotes, result.Quotes...)
		s.Pages++
		logger.Debug("page scanned",
			zap.Int("page", page),
			zap.Int("quotes", len(result.Quotes)),
			zap.Bool("has_next", result.HasNext),
		)

		if !result.HasNext {
			s.StopReason = StopLastPage
			state = stateDone
			continue
		}
		page++
	}
	return nil
}
