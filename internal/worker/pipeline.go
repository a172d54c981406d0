// Package worker runs configured sources through fetch, extraction, storage, export and
// notification. A Pipeline processes one source at a time; Workers pull sources off a queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/extract"
	"github.com/mkonefal2/clickbait-verifier/internal/listing"
	"github.com/mkonefal2/clickbait-verifier/internal/metrics"
	"github.com/mkonefal2/clickbait-verifier/internal/store"
	"github.com/mkonefal2/clickbait-verifier/internal/telemetry"
)

// Item skip reasons.
const (
	ReasonAlreadyStored   = "already stored"
	ReasonNotToday        = "not published today"
	ReasonNoURL           = "no url provided"
	ReasonUnchanged       = "no new fields"
	ReasonNoArticlesFound = "no article links found"
)

// PageFetcher fetches a URL with a strategy.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, strategy crawler.Strategy) (crawler.Page, error)
}

// FeedReader lists the entries of an RSS/Atom feed.
type FeedReader interface {
	Entries(ctx context.Context, feedURL string) ([]crawler.FeedEntry, error)
}

// HintLoader returns per-source content selectors.
type HintLoader interface {
	Load(source string) ([]string, error)
}

// Exporter writes a stored record as a JSON object.
type Exporter interface {
	ExportRecord(ctx context.Context, rec crawler.ArticleRecord) (string, error)
}

// Fingerprinter digests article content for notifications.
type Fingerprinter interface {
	Fingerprint(content string) string
}

// Prompter asks an operator for URLs of an ask_for_url source.
type Prompter interface {
	Prompt(ctx context.Context, source crawler.SourceDefinition) (string, error)
}

// Deps are the collaborators of a Pipeline. Store, Fetcher, Extractor and Clock are required.
type Deps struct {
	Store       store.ArticleStore
	Fetcher     PageFetcher
	Extractor   *extract.Extractor
	Clock       crawler.Clock
	Feeds       FeedReader
	Hints       HintLoader
	Exporter    Exporter
	Publisher   crawler.Publisher
	Limiter     crawler.RateLimiter
	Fingerprint Fingerprinter
	Prompter    Prompter
	// Sources are consulted when inferring the source of an ad-hoc URL.
	Sources []crawler.SourceDefinition
	Logger  *zap.Logger
}

// Config holds pipeline settings.
type Config struct {
	// Topic receives new-record events; empty disables notifications.
	Topic string
}

// NewArticleEvent is published after a record is created.
type NewArticleEvent struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	URL           string    `json:"url"`
	Title         *string   `json:"title"`
	FetchedAt     time.Time `json:"fetched_at"`
	ContentSHA256 string    `json:"content_sha256,omitempty"`
}

// Pipeline processes sources and individual article URLs.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
}

// NewPipeline validates deps and builds a Pipeline.
func NewPipeline(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("article store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("page fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger, tracer: telemetry.Tracer()}, nil
}

// RunSource processes every article a source yields. It never fails as a whole: problems are
// reported per item.
func (p *Pipeline) RunSource(ctx context.Context, src crawler.SourceDefinition) []crawler.ItemResult {
	ctx, span := p.tracer.Start(ctx, "source.run", trace.WithAttributes(attribute.String("source", src.Name)))
	defer span.End()

	logger := p.logger.With(zap.String("source", src.Name))
	logger.Info("Processing source")

	var results []crawler.ItemResult
	switch {
	case src.AskForURL:
		results = p.runPrompted(ctx, src)
	case src.ScrapeListing:
		results = p.runListing(ctx, src)
	case src.RSSURL != "":
		results = p.runFeed(ctx, src)
	case src.URL != "":
		results = []crawler.ItemResult{p.ProcessURL(ctx, src, src.URL, nil)}
	default:
		results = []crawler.ItemResult{skipped(src.Name, "", ReasonNoURL)}
	}
	logger.Info("Source finished", zap.Int("items", len(results)))
	return results
}

func (p *Pipeline) runPrompted(ctx context.Context, src crawler.SourceDefinition) []crawler.ItemResult {
	if p.deps.Prompter == nil {
		return []crawler.ItemResult{skipped(src.Name, "", ReasonNoURL)}
	}
	input, err := p.deps.Prompter.Prompt(ctx, src)
	if err != nil {
		return []crawler.ItemResult{failed(src.Name, "", fmt.Errorf("prompt: %w", err))}
	}
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "skip") {
		return []crawler.ItemResult{skipped(src.Name, "", ReasonNoURL)}
	}
	return p.processAll(ctx, src, crawler.SplitURLList(input), nil)
}

func (p *Pipeline) runListing(ctx context.Context, src crawler.SourceDefinition) []crawler.ItemResult {
	page, err := p.deps.Fetcher.Fetch(ctx, src.URL, src.Strategy())
	if err != nil {
		p.logger.Warn("Listing fetch failed", zap.String("source", src.Name), zap.Error(err))
		return []crawler.ItemResult{failed(src.Name, src.URL, err)}
	}
	urls, err := listing.Discover(src.URL, page.HTML, src.Pattern())
	if err != nil {
		return []crawler.ItemResult{failed(src.Name, src.URL, err)}
	}
	p.logger.Info("Discovered article links", zap.String("source", src.Name), zap.Int("count", len(urls)))
	if len(urls) == 0 {
		return []crawler.ItemResult{skipped(src.Name, src.URL, ReasonNoArticlesFound)}
	}
	return p.processAll(ctx, src, urls, nil)
}

func (p *Pipeline) runFeed(ctx context.Context, src crawler.SourceDefinition) []crawler.ItemResult {
	if p.deps.Feeds == nil {
		return []crawler.ItemResult{failed(src.Name, src.RSSURL, errors.New("feed reader not configured"))}
	}
	entries, err := p.deps.Feeds.Entries(ctx, src.RSSURL)
	if err != nil {
		p.logger.Warn("Feed read failed", zap.String("source", src.Name), zap.Error(err))
		return []crawler.ItemResult{failed(src.Name, src.RSSURL, err)}
	}
	urls := make([]string, 0, len(entries))
	seeds := make(map[string]*crawler.FeedEntry, len(entries))
	for i := range entries {
		urls = append(urls, entries[i].URL)
		seeds[entries[i].URL] = &entries[i]
	}
	return p.processAll(ctx, src, urls, seeds)
}

func (p *Pipeline) processAll(
	ctx context.Context,
	src crawler.SourceDefinition,
	urls []string,
	seeds map[string]*crawler.FeedEntry,
) []crawler.ItemResult {
	results := make([]crawler.ItemResult, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			results = append(results, failed(src.Name, u, ctx.Err()))
			continue
		}
		results = append(results, p.ProcessURL(ctx, src, u, seeds[u]))
	}
	return results
}

// FetchURLs processes operator-supplied URLs, inferring each one's source.
func (p *Pipeline) FetchURLs(ctx context.Context, urls []string) []crawler.ItemResult {
	results := make([]crawler.ItemResult, 0, len(urls))
	for _, u := range urls {
		src, ok := MatchSource(p.deps.Sources, u)
		if !ok {
			src = crawler.SourceDefinition{FetchMethod: string(crawler.StrategyAuto)}
		}
		results = append(results, p.ProcessURL(ctx, src, u, nil))
	}
	return results
}

// ProcessURL runs one article through the pipeline. seed carries feed metadata when the URL
// came from RSS. A source with an empty name has its name inferred after extraction.
func (p *Pipeline) ProcessURL(
	ctx context.Context,
	src crawler.SourceDefinition,
	rawURL string,
	seed *crawler.FeedEntry,
) (result crawler.ItemResult) {
	ctx, span := p.tracer.Start(ctx, "article.process", trace.WithAttributes(
		attribute.String("source", src.Name),
		attribute.String("url", rawURL),
	))
	defer func() {
		span.SetAttributes(attribute.String("status", string(result.Status)))
		if result.Status == crawler.ItemFailed {
			span.SetStatus(codes.Error, result.Reason)
		}
		span.End()
		metrics.ObserveItem(result.Source, string(result.Status))
		p.logItem(result)
	}()

	articleURL, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return failed(src.Name, rawURL, err)
	}

	existing, err := p.deps.Store.GetByURL(ctx, articleURL)
	switch {
	case err == nil:
		res := skipped(src.Name, articleURL, ReasonAlreadyStored)
		res.ID = existing.ID
		return res
	case !errors.Is(err, crawler.ErrNotFound):
		return failed(src.Name, articleURL, err)
	}

	if p.deps.Limiter != nil {
		if err := p.deps.Limiter.Wait(ctx, articleURL); err != nil {
			return failed(src.Name, articleURL, err)
		}
	}

	page, err := p.deps.Fetcher.Fetch(ctx, articleURL, src.Strategy())
	if err != nil {
		return failed(src.Name, articleURL, err)
	}

	art, err := p.deps.Extractor.Extract(page.HTML, p.hintsFor(src)...)
	if err != nil {
		return failed(src.Name, articleURL, err)
	}
	observeMissing(art)

	draft := p.buildDraft(src, articleURL, page, art, seed)
	if src.OnlyToday && draft.PublishedAt != nil && !sameDay(*draft.PublishedAt, draft.FetchedAt) {
		return skipped(draft.Source, articleURL, ReasonNotToday)
	}

	saved, err := p.deps.Store.Save(ctx, draft)
	if err != nil {
		metrics.ObserveSave("error")
		return failed(draft.Source, articleURL, err)
	}

	result = crawler.ItemResult{Source: draft.Source, URL: articleURL, ID: saved.ID}
	switch {
	case saved.Created:
		metrics.ObserveSave("created")
		result.Status = crawler.ItemSaved
	case saved.Updated:
		metrics.ObserveSave("updated")
		result.Status = crawler.ItemUpdated
	default:
		metrics.ObserveSave("unchanged")
		result.Status = crawler.ItemSkipped
		result.Reason = ReasonUnchanged
		return result
	}

	rec, err := p.deps.Store.GetByID(ctx, saved.ID)
	if err != nil {
		p.logger.Warn("Reload after save failed", zap.String("id", saved.ID), zap.Error(err))
		rec = store.NewRecord(saved.ID, draft)
	}
	result.Path = p.export(ctx, rec)
	if saved.Created {
		p.notify(ctx, rec)
	}
	return result
}

func (p *Pipeline) hintsFor(src crawler.SourceDefinition) []string {
	hints := append([]string(nil), src.ContentSelectors...)
	if p.deps.Hints == nil || src.Name == "" {
		return hints
	}
	fileHints, err := p.deps.Hints.Load(src.Name)
	if err != nil {
		p.logger.Warn("Ignoring extractor hints", zap.String("source", src.Name), zap.Error(err))
		return hints
	}
	return append(hints, fileHints...)
}

func (p *Pipeline) buildDraft(
	src crawler.SourceDefinition,
	articleURL string,
	page crawler.Page,
	art extract.Article,
	seed *crawler.FeedEntry,
) crawler.ArticleDraft {
	draft := crawler.ArticleDraft{
		Source:      src.Name,
		URL:         articleURL,
		Title:       art.Title,
		Content:     art.Content,
		PublishedAt: art.PublishedAt,
		FetchedAt:   p.deps.Clock.Now(),
	}
	if draft.Source == "" {
		draft.Source = InferSourceName(art.SiteName, articleURL)
	}
	if seed != nil {
		if title := strings.TrimSpace(seed.Title); title != "" {
			draft.Title = &title
		}
		if draft.PublishedAt == nil && seed.Published != nil {
			published := *seed.Published
			draft.PublishedAt = &published
		}
	}
	if art.ImageURL != nil {
		base := page.URL
		if base == "" {
			base = articleURL
		}
		image := extract.ResolveURL(base, *art.ImageURL)
		draft.ImageURL = &image
	}
	return draft
}

func (p *Pipeline) export(ctx context.Context, rec crawler.ArticleRecord) string {
	if p.deps.Exporter == nil {
		return ""
	}
	uri, err := p.deps.Exporter.ExportRecord(ctx, rec)
	if err != nil {
		p.logger.Warn("Record export failed", zap.String("id", rec.ID), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) notify(ctx context.Context, rec crawler.ArticleRecord) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	event := NewArticleEvent{
		ID:        rec.ID,
		Source:    rec.Source,
		URL:       rec.URL,
		Title:     rec.Title,
		FetchedAt: rec.FetchedAt,
	}
	if p.deps.Fingerprint != nil {
		event.ContentSHA256 = p.deps.Fingerprint.Fingerprint(rec.Content)
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
		metrics.ObserveNotification("error")
		p.logger.Warn("New record notification failed", zap.String("id", rec.ID), zap.Error(err))
		return
	}
	metrics.ObserveNotification("ok")
}

func (p *Pipeline) logItem(res crawler.ItemResult) {
	fields := []zap.Field{
		zap.String("source", res.Source),
		zap.String("url", res.URL),
		zap.String("status", string(res.Status)),
	}
	if res.ID != "" {
		fields = append(fields, zap.String("id", res.ID))
	}
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	if res.Status == crawler.ItemFailed {
		p.logger.Warn("Article failed", fields...)
		return
	}
	p.logger.Info("Article processed", fields...)
}

func observeMissing(art extract.Article) {
	if art.Title == nil {
		metrics.ObserveMissingField("title")
	}
	if strings.TrimSpace(art.Content) == "" {
		metrics.ObserveMissingField("content")
	}
	if art.PublishedAt == nil {
		metrics.ObserveMissingField("published")
	}
	if art.ImageURL == nil {
		metrics.ObserveMissingField("image")
	}
}

// sameDay compares calendar days in the location of now.
func sameDay(t, now time.Time) bool {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	return ty == ny && tm == nm && td == nd
}

func skipped(source, url, reason string) crawler.ItemResult {
	return crawler.ItemResult{Source: source, URL: url, Status: crawler.ItemSkipped, Reason: reason}
}

func failed(source, url string, err error) crawler.ItemResult {
	return crawler.ItemResult{Source: source, URL: url, Status: crawler.ItemFailed, Reason: err.Error()}
}
