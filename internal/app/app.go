// Package app wires configuration into a runnable crawl: fetcher, extractors,
// crawler, sinks, and the completion publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/extractor/toscrape"
	collyfetcher "github.com/JakeFAU/quotes-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/quotes-crawler/internal/id/uuid"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
	"github.com/JakeFAU/quotes-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/quotes-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/quotes-crawler/internal/publisher/pubsub"
	csvsink "github.com/JakeFAU/quotes-crawler/internal/sink/csv"
	pgsink "github.com/JakeFAU/quotes-crawler/internal/sink/postgres"
	gcsstorage "github.com/JakeFAU/quotes-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/quotes-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/quotes-crawler/internal/storage/memory"
)

// EventType tags completion events.
const EventType = "quotes.crawl.completed"

// CompletionEvent summarizes a finished run. It is published when a
// publisher is configured and returned from Run either way.
type CompletionEvent struct {
	SessionID       string             `json:"session_id"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Pages           int                `json:"pages"`
	Records         int                `json:"records"`
	Entities        int                `json:"entities"`
	DroppedEntities int                `json:"dropped_entities"`
	StoppedReason   string             `json:"stopped_reason"`
	Artifacts       []csvsink.Artifact `json:"artifacts"`
}

// Attributes returns Pub/Sub message attributes for the event.
func (e CompletionEvent) Attributes() map[string]string {
	return map[string]string{
		"event_type": EventType,
		"session_id": e.SessionID,
	}
}

// App contains the dependencies for one crawl.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	crawler   *crawler.Crawler
	blobStore crawler.BlobStore
	pgSink    *pgsink.Sink
	publisher crawler.Publisher

	metricsServer *metrics.Server
	closers       []func(context.Context) error
}

// Option overrides a dependency Build would otherwise create.
type Option func(*App)

// WithBlobStore replaces the configured storage provider.
func WithBlobStore(store crawler.BlobStore) Option {
	return func(a *App) { a.blobStore = store }
}

// WithPublisher replaces the configured completion publisher.
func WithPublisher(pub crawler.Publisher) Option {
	return func(a *App) { a.publisher = pub }
}

// Build constructs every component named by cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if err := setupCrawler(a); err != nil {
		return nil, err
	}
	if cfg.HasSink(config.SinkCSV) && a.blobStore == nil {
		if err := setupStorage(ctx, a); err != nil {
			return nil, err
		}
	}
	if cfg.HasSink(config.SinkPostgres) {
		if err := setupPostgres(ctx, a); err != nil {
			return nil, err
		}
	}
	if a.publisher == nil {
		if err := setupPublisher(ctx, a); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr, logger.Named("metrics"))
		if err != nil {
			return nil, fmt.Errorf("metrics server init failed: %w", err)
		}
		a.metricsServer = srv
		a.closers = append(a.closers, srv.Shutdown)
	}
	return a, nil
}

// Run crawls, writes every configured sink, and publishes the completion
// event. An extraction failure returns before any sink is written.
func (a *App) Run(ctx context.Context) (*CompletionEvent, error) {
	session, err := a.crawler.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}

	var (
		sinks crawler.MultiSink
		csv   *csvsink.Sink
	)
	if a.cfg.HasSink(config.SinkCSV) {
		csv, err = csvsink.New(a.blobStore, path.Join(a.cfg.Output.Prefix, session.ID))
		if err != nil {
			return nil, fmt.Errorf("csv sink: %w", err)
		}
		sinks = append(sinks, csv)
	}
	if a.pgSink != nil {
		sinks = append(sinks, a.pgSink.ForSession(session.ID))
	}
	if err := crawler.Emit(ctx, sinks, session); err != nil {
		return nil, err
	}

	event := &CompletionEvent{
		SessionID:       session.ID,
		StartedAt:       session.StartedAt,
		FinishedAt:      session.FinishedAt,
		Pages:           session.Pages,
		Records:         len(session.Quotes),
		Entities:        len(session.Authors),
		DroppedEntities: len(session.DroppedAuthorURLs),
		StoppedReason:   string(session.StopReason),
		Artifacts:       []csvsink.Artifact{},
	}
	if csv != nil {
		event.Artifacts = csv.Artifacts()
	}

	if a.publisher != nil {
		id, err := a.publisher.Publish(ctx, a.cfg.Publisher.Topic, event)
		if err != nil {
			return event, fmt.Errorf("publish completion event: %w", err)
		}
		a.logger.Info("completion event published",
			zap.String("topic", a.cfg.Publisher.Topic),
			zap.String("message_id", id))
	}

	a.logger.Info("crawl written",
		zap.String("session_id", event.SessionID),
		zap.Int("records", event.Records),
		zap.Int("entities", event.Entities),
		zap.Int("artifacts", len(event.Artifacts)))
	return event, nil
}

// MetricsAddr returns the metrics listener address, or "" when disabled.
func (a *App) MetricsAddr() string {
	if a.metricsServer == nil {
		return ""
	}
	return a.metricsServer.Addr()
}

// Close releases every opened resource in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
		return err
	}
	return nil
}

func setupCrawler(a *App) error {
	cc := a.cfg.Crawler
	limiter := ratelimit.New(ratelimit.Config{RPS: cc.RateLimitRPS, Burst: cc.RateLimitBurst})
	base := collyfetcher.New(collyfetcher.Config{
		UserAgent: cc.UserAgent,
		Timeout:   cc.RequestTimeout,
	}, limiter, a.logger.Named("fetcher"))

	var fetcher crawler.Fetcher = base
	if cc.MaxRetries > 0 {
		policy := crawler.NewExponentialRetryPolicy(cc.MaxRetries, cc.BackoffInitial, cc.BackoffMax)
		fetcher = crawler.NewRetryingFetcher(base, policy, a.logger.Named("retry"))
	}

	extractor, err := toscrape.New(a.cfg.Source.BaseURL)
	if err != nil {
		return fmt.Errorf("extractor init failed: %w", err)
	}

	c, err := crawler.New(crawler.Config{
		BaseURL:           a.cfg.Source.BaseURL,
		MaxPages:          cc.MaxPages,
		AuthorConcurrency: cc.EntityConcurrency,
	}, fetcher, extractor, extractor, uuid.New(), a.logger.Named("crawler"))
	if err != nil {
		return fmt.Errorf("crawler init failed: %w", err)
	}
	a.crawler = c
	return nil
}

func setupStorage(ctx context.Context, a *App) error {
	switch a.cfg.Storage.Provider {
	case config.StorageGCS:
		store, err := gcsstorage.New(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("storage init failed: %w", err)
		}
		a.blobStore = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		a.logger.Info("using gcs storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case config.StorageMemory:
		a.blobStore = memorystorage.NewBlobStore()
		a.logger.Warn("using in-memory storage, csv artifacts will be discarded")
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("storage init failed: %w", err)
		}
		a.blobStore = store
		a.logger.Info("using local storage", zap.String("dir", a.cfg.Storage.BaseDir))
	}
	return nil
}

func setupPostgres(ctx context.Context, a *App) error {
	sink, err := pgsink.New(ctx, pgsink.Config{
		DSN:         a.cfg.Postgres.DSN,
		TablePrefix: a.cfg.Postgres.TablePrefix,
		MaxConns:    a.cfg.Postgres.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("postgres sink init failed: %w", err)
	}
	a.pgSink = sink
	a.closers = append(a.closers, func(context.Context) error {
		sink.Close()
		return nil
	})
	return nil
}

func setupPublisher(ctx context.Context, a *App) error {
	if a.cfg.Publisher.Provider != config.PublisherPubSub {
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.Publisher.ProjectID)
	if err != nil {
		return err
	}
	a.publisher = pub
	a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
	a.logger.Info("pubsub publisher initialized",
		zap.String("project", a.cfg.Publisher.ProjectID),
		zap.String("topic", a.cfg.Publisher.Topic))
	return nil
}
