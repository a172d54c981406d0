// Package app builds the long-lived services from configuration and exposes the operations the
// CLI commands run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/api"
	"github.com/mkonefal2/clickbait-verifier/internal/clock/system"
	"github.com/mkonefal2/clickbait-verifier/internal/config"
	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/datenorm"
	"github.com/mkonefal2/clickbait-verifier/internal/dispatcher"
	"github.com/mkonefal2/clickbait-verifier/internal/extract"
	"github.com/mkonefal2/clickbait-verifier/internal/feed"
	"github.com/mkonefal2/clickbait-verifier/internal/fetcher"
	collyfetcher "github.com/mkonefal2/clickbait-verifier/internal/fetcher/colly"
	headlessfetcher "github.com/mkonefal2/clickbait-verifier/internal/fetcher/headless"
	"github.com/mkonefal2/clickbait-verifier/internal/hash/sha256"
	"github.com/mkonefal2/clickbait-verifier/internal/headless/detector"
	"github.com/mkonefal2/clickbait-verifier/internal/id/uuid"
	"github.com/mkonefal2/clickbait-verifier/internal/metrics"
	"github.com/mkonefal2/clickbait-verifier/internal/policy/ratelimit"
	memorypublisher "github.com/mkonefal2/clickbait-verifier/internal/publisher/memory"
	pubsubpublisher "github.com/mkonefal2/clickbait-verifier/internal/publisher/pubsub"
	queueMemory "github.com/mkonefal2/clickbait-verifier/internal/queue/memory"
	"github.com/mkonefal2/clickbait-verifier/internal/report"
	"github.com/mkonefal2/clickbait-verifier/internal/storage/gcs"
	"github.com/mkonefal2/clickbait-verifier/internal/storage/local"
	memoryStorage "github.com/mkonefal2/clickbait-verifier/internal/storage/memory"
	"github.com/mkonefal2/clickbait-verifier/internal/storage/postgres"
	"github.com/mkonefal2/clickbait-verifier/internal/storage/sqlite"
	"github.com/mkonefal2/clickbait-verifier/internal/store"
	"github.com/mkonefal2/clickbait-verifier/internal/telemetry"
	"github.com/mkonefal2/clickbait-verifier/internal/worker"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

// App holds the shared services. It is built once per command and closed when the command ends.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     *system.Clock
	store     store.ArticleStore
	exporter  *report.Exporter
	publisher crawler.Publisher
	pipeline  *worker.Pipeline

	closers []func() error
}

// Option overrides a backend chosen from configuration.
type Option func(*options)

type options struct {
	store     store.ArticleStore
	blobs     crawler.BlobStore
	publisher crawler.Publisher
	fetcher   worker.PageFetcher
	feeds     worker.FeedReader
	prompter  worker.Prompter
}

// WithStore uses s instead of the configured storage backend.
func WithStore(s store.ArticleStore) Option {
	return func(o *options) { o.store = s }
}

// WithBlobStore uses b instead of the configured export backend.
func WithBlobStore(b crawler.BlobStore) Option {
	return func(o *options) { o.blobs = b }
}

// WithPublisher uses p instead of the configured notification backend.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithFetcher replaces the direct/rendered strategy selector.
func WithFetcher(f worker.PageFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithFeedReader replaces the RSS reader.
func WithFeedReader(r worker.FeedReader) Option {
	return func(o *options) { o.feeds = r }
}

// WithPrompter replaces the stdin prompter used by ask_for_url sources.
func WithPrompter(p worker.Prompter) Option {
	return func(o *options) { o.prompter = p }
}

// New wires every service described by cfg. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	metrics.Init()

	if cfg.Telemetry.Enabled {
		tp, tErr := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     Version,
			ProjectID:   cfg.Telemetry.ProjectID,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if tErr != nil {
			return nil, fmt.Errorf("init tracing: %w", tErr)
		}
		a.onClose(func() error { return tp.Shutdown(context.Background()) })
	}

	a.clock, err = system.NewInLocation(cfg.Crawler.Location)
	if err != nil {
		return nil, err
	}

	if a.store = o.store; a.store == nil {
		if a.store, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}
	a.onClose(a.store.Close)

	blobs := o.blobs
	if blobs == nil {
		if blobs, err = a.openBlobStore(ctx); err != nil {
			return nil, err
		}
	}
	if a.exporter, err = report.NewExporter(blobs, a.clock, logger.Named("report")); err != nil {
		return nil, fmt.Errorf("init exporter: %w", err)
	}

	if a.publisher = o.publisher; a.publisher == nil {
		if a.publisher, err = a.openPublisher(ctx); err != nil {
			return nil, err
		}
	}

	dates := datenorm.New(a.clock, datenorm.WithLocation(a.clock.Location()))

	pageFetcher := o.fetcher
	if pageFetcher == nil {
		if pageFetcher, err = a.buildSelector(); err != nil {
			return nil, err
		}
	}
	feeds := o.feeds
	if feeds == nil {
		feeds = feed.NewReader(&http.Client{Timeout: cfg.HTTPTimeout()}, cfg.Crawler.UserAgent, dates)
	}
	prompter := o.prompter
	if prompter == nil {
		prompter = worker.NewLinePrompter(os.Stdin, os.Stderr)
	}

	delay := cfg.Delay()
	if delay == 0 {
		delay = -1
	}

	a.pipeline, err = worker.NewPipeline(worker.Deps{
		Store:       a.store,
		Fetcher:     pageFetcher,
		Extractor:   extract.New(dates),
		Clock:       a.clock,
		Feeds:       feeds,
		Hints:       extract.NewHintLoader(cfg.Crawler.ExtractorDir),
		Exporter:    a.exporter,
		Publisher:   a.publisher,
		Limiter:     ratelimit.New(ratelimit.Config{Delay: delay}),
		Fingerprint: sha256.New(),
		Prompter:    prompter,
		Sources:     cfg.Sources,
		Logger:      logger.Named("pipeline"),
	}, worker.Config{Topic: cfg.PubSub.Topic})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	logger.Info("Application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("export", cfg.Export.Backend),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
		zap.Bool("headless", cfg.Headless.Enabled),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.ArticleStore, error) {
	ids := uuid.New()
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		pg := a.cfg.Storage.Postgres
		if pg.Migrate {
			if err := postgres.RunMigrations(pg.DSN); err != nil {
				return nil, err
			}
		}
		s, err := postgres.NewArticleStore(ctx, postgres.Config{
			DSN:      pg.DSN,
			MaxConns: pg.MaxConns,
			MinConns: pg.MinConns,
		}, ids)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case config.BackendSQLite:
		s, err := sqlite.NewArticleStore(a.cfg.Storage.SQLite.Path, ids)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, nil
	case config.BackendMemory:
		a.logger.Warn("Using in-memory article store; records are lost on exit")
		return memoryStorage.NewArticleStore(ids), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func (a *App) openBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Export.Backend {
	case config.BackendLocal:
		b, err := local.New(local.Config{BaseDir: a.cfg.Export.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local export: %w", err)
		}
		return b, nil
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.onClose(client.Close)
		b, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Export.GCS.Bucket, Prefix: a.cfg.Export.GCS.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs export: %w", err)
		}
		return b, nil
	case config.BackendMemory:
		return memoryStorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown export backend %q", a.cfg.Export.Backend)
	}
}

func (a *App) openPublisher(ctx context.Context) (crawler.Publisher, error) {
	if !a.cfg.PubSub.Enabled {
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	p := pubsubpublisher.New(client)
	a.onClose(p.Close)
	return p, nil
}

func (a *App) buildSelector() (*fetcher.Selector, error) {
	cfg := a.cfg
	direct := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		AcceptLanguage: cfg.Crawler.AcceptLanguage,
		RespectRobots:  cfg.Crawler.RespectRobots,
		Timeout:        cfg.HTTPTimeout(),
	})
	var rendered crawler.Fetcher = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			AcceptLanguage:    cfg.Crawler.AcceptLanguage,
			NavigationTimeout: cfg.NavTimeout(),
			ExecPath:          cfg.Headless.ExecPath,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.onClose(func() error {
			hf.Close()
			return nil
		})
		rendered = hf
	}
	return fetcher.NewSelector(
		direct,
		rendered,
		detector.NewHeuristic(cfg.Crawler.EscalationMinChars),
		a.logger.Named("fetcher"),
	), nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store exposes the article store.
func (a *App) Store() store.ArticleStore {
	return a.store
}

// RunSources processes every enabled source, or only the source called name when name is set.
func (a *App) RunSources(ctx context.Context, name string) ([]crawler.ItemResult, error) {
	sources := a.cfg.EnabledSources()
	if name != "" {
		src, ok := crawler.FindSource(a.cfg.Sources, name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		sources = []crawler.SourceDefinition{src}
	}
	if len(sources) == 0 {
		a.logger.Warn("No enabled sources configured")
		return nil, nil
	}

	workers := a.cfg.Crawler.Concurrency
	if workers > len(sources) {
		workers = len(sources)
	}
	q := queueMemory.NewQueue(a.cfg.Crawler.QueueDepth)
	pool := make([]*worker.Worker, 0, workers)
	for i := 0; i < workers; i++ {
		pool = append(pool, worker.New(i, q, a.pipeline, a.logger.Named("worker").With(zap.Int("index", i))))
	}
	return dispatcher.New(q, pool, a.clock, a.logger.Named("dispatcher")).Run(ctx, sources)
}

// FetchURLs processes operator-supplied article URLs.
func (a *App) FetchURLs(ctx context.Context, urls []string) []crawler.ItemResult {
	return a.pipeline.FetchURLs(ctx, urls)
}

// Unprocessed lists records still waiting for an analysis.
func (a *App) Unprocessed(ctx context.Context, limit int) ([]crawler.ArticleRecord, error) {
	recs, err := a.store.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	return recs, nil
}

// ExportUnprocessed writes the unprocessed records as one batch for the scoring agent. No file
// is written when nothing is pending.
func (a *App) ExportUnprocessed(ctx context.Context, limit int) (string, int, error) {
	recs, err := a.Unprocessed(ctx, limit)
	if err != nil {
		return "", 0, err
	}
	if len(recs) == 0 {
		return "", 0, nil
	}
	uri, err := a.exporter.ExportBatch(ctx, recs)
	if err != nil {
		return "", 0, fmt.Errorf("export batch: %w", err)
	}
	return uri, len(recs), nil
}

// ImportSummary reports what an analysis import did.
type ImportSummary struct {
	Saved   int      `json:"saved"`
	Unknown []string `json:"unknown,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

// ImportAnalyses stores every scoring result in r. Unknown ids and invalid payloads are
// reported and skipped; a store failure aborts the import.
func (a *App) ImportAnalyses(ctx context.Context, r io.Reader) (ImportSummary, error) {
	var summary ImportSummary
	payloads, err := report.DecodeAnalyses(r)
	if err != nil {
		return summary, err
	}
	now := a.clock.Now().UTC()
	for _, p := range payloads {
		if p.ID == "" {
			summary.Invalid = append(summary.Invalid, "(missing id)")
			continue
		}
		analysis, err := p.Analysis(now)
		if err != nil {
			a.logger.Warn("Invalid analysis skipped", zap.String("id", p.ID), zap.Error(err))
			summary.Invalid = append(summary.Invalid, p.ID)
			continue
		}
		if err := a.store.SaveAnalysis(ctx, p.ID, analysis); err != nil {
			if errors.Is(err, crawler.ErrNotFound) {
				a.logger.Warn("Analysis for unknown article skipped", zap.String("id", p.ID))
				summary.Unknown = append(summary.Unknown, p.ID)
				continue
			}
			return summary, fmt.Errorf("save analysis %s: %w", p.ID, err)
		}
		summary.Saved++
		if _, err := a.exporter.ExportAnalysis(ctx, p.ID, analysis); err != nil {
			a.logger.Warn("Analysis export failed", zap.String("id", p.ID), zap.Error(err))
		}
	}
	return summary, nil
}

// Server builds the HTTP API over the app's store and exporter.
func (a *App) Server() *api.Server {
	return api.NewServer(a.store, a.exporter, a.clock, a.cfg, a.logger.Named("api"))
}

// Close shuts the services down in reverse order of construction.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
