package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/datenorm"
	"github.com/mkonefal2/clickbait-verifier/internal/extract"
	"github.com/mkonefal2/clickbait-verifier/internal/hash/sha256"
	pubmemory "github.com/mkonefal2/clickbait-verifier/internal/publisher/memory"
	"github.com/mkonefal2/clickbait-verifier/internal/report"
	"github.com/mkonefal2/clickbait-verifier/internal/storage/memory"
)

var testNow = time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string, strategy crawler.Strategy) (crawler.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	if !ok {
		return crawler.Page{}, &crawler.FetchError{URL: url, Strategy: strategy, Err: &crawler.StatusError{StatusCode: 404}}
	}
	return crawler.Page{URL: url, HTML: html, StatusCode: 200}, nil
}

func (f *stubFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type stubFeeds struct {
	entries []crawler.FeedEntry
	err     error
}

func (s stubFeeds) Entries(context.Context, string) ([]crawler.FeedEntry, error) {
	return s.entries, s.err
}

type stubPrompter struct{ answer string }

func (s stubPrompter) Prompt(context.Context, crawler.SourceDefinition) (string, error) {
	return s.answer, nil
}

type stubHints map[string][]string

func (h stubHints) Load(source string) ([]string, error) { return h[source], nil }

type harness struct {
	pipeline  *Pipeline
	store     *memory.ArticleStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	fetcher   *stubFetcher
}

func newHarness(t *testing.T, pages map[string]string, mutate func(*Deps)) *harness {
	t.Helper()
	clock := fixedClock{t: testNow}
	st := memory.NewArticleStore(&seqIDs{})
	blobs := memory.NewBlobStore()
	exp, err := report.NewExporter(blobs, clock, zap.NewNop())
	require.NoError(t, err)
	pub := pubmemory.New()
	fetcher := &stubFetcher{pages: pages}

	deps := Deps{
		Store:       st,
		Fetcher:     fetcher,
		Extractor:   extract.New(datenorm.New(clock)),
		Clock:       clock,
		Exporter:    exp,
		Publisher:   pub,
		Fingerprint: sha256.New(),
		Logger:      zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	p, err := NewPipeline(deps, Config{Topic: "articles-new"})
	require.NoError(t, err)
	return &harness{pipeline: p, store: st, blobs: blobs, publisher: pub, fetcher: fetcher}
}

func articleHTML(title, published string) string {
	body := strings.Repeat("Treść artykułu o wydarzeniach w mieście. ", 10)
	meta := ""
	if published != "" {
		meta = `<meta property="article:published_time" content="` + published + `">`
	}
	return `<html><head><title>` + title + `</title>` + meta +
		`<meta property="og:image" content="/img/lead.jpg"></head><body><article><p>` + body +
		`</p></article></body></html>`
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(Deps{}, Config{})
	require.Error(t, err)
}

func TestProcessURLSavesExportsAndNotifies(t *testing.T) {
	t.Parallel()

	url := "https://www.rmf24.pl/fakty/news-a,nId,1"
	h := newHarness(t, map[string]string{url: articleHTML("Nagłówek", "2025-11-02T10:57:00Z")}, nil)
	src := crawler.SourceDefinition{Name: "RMF24", URL: url}

	res := h.pipeline.ProcessURL(context.Background(), src, url, nil)
	require.Equal(t, crawler.ItemSaved, res.Status, res.Reason)
	require.Equal(t, "id-1", res.ID)
	require.Equal(t, "memory://scraped/scraped_id-1.json", res.Path)

	rec, err := h.store.GetByURL(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, "Nagłówek", *rec.Title)
	require.Equal(t, "https://www.rmf24.pl/img/lead.jpg", *rec.ImageURL)
	require.True(t, time.Date(2025, 11, 2, 10, 57, 0, 0, time.UTC).Equal(*rec.PublishedAt))
	require.Equal(t, testNow, rec.FetchedAt)

	msgs := h.publisher.Messages("articles-new")
	require.Len(t, msgs, 1)
	var event NewArticleEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	require.Equal(t, "id-1", event.ID)
	require.Equal(t, "RMF24", event.Source)
	require.Len(t, event.ContentSHA256, 64)
}

func TestProcessURLSkipsStoredURLWithoutFetching(t *testing.T) {
	t.Parallel()

	url := "https://example.pl/a"
	h := newHarness(t, map[string]string{url: articleHTML("A", "")}, nil)
	src := crawler.SourceDefinition{Name: "Example"}

	first := h.pipeline.ProcessURL(context.Background(), src, url, nil)
	require.Equal(t, crawler.ItemSaved, first.Status)

	second := h.pipeline.ProcessURL(context.Background(), src, url+"#comments", nil)
	require.Equal(t, crawler.ItemSkipped, second.Status)
	require.Equal(t, ReasonAlreadyStored, second.Reason)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, h.fetcher.fetched(), 1)
	require.Len(t, h.publisher.Messages(""), 1)
}

func TestProcessURLReportsFetchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	res := h.pipeline.ProcessURL(context.Background(), crawler.SourceDefinition{Name: "X"}, "https://example.pl/missing", nil)
	require.Equal(t, crawler.ItemFailed, res.Status)
	require.Contains(t, res.Reason, "404")

	_, err := h.store.GetByURL(context.Background(), "https://example.pl/missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestProcessURLRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	res := h.pipeline.ProcessURL(context.Background(), crawler.SourceDefinition{Name: "X"}, "/relative", nil)
	require.Equal(t, crawler.ItemFailed, res.Status)
	require.Empty(t, h.fetcher.fetched())
}

func TestProcessURLNotificationFailureKeepsItem(t *testing.T) {
	t.Parallel()

	url := "https://example.pl/a"
	h := newHarness(t, map[string]string{url: articleHTML("A", "")}, nil)
	h.publisher.FailWith(errors.New("pubsub down"))

	res := h.pipeline.ProcessURL(context.Background(), crawler.SourceDefinition{Name: "X"}, url, nil)
	require.Equal(t, crawler.ItemSaved, res.Status)
}

func TestRunSourceListingOnlyToday(t *testing.T) {
	t.Parallel()

	listingURL := "https://www.rmf24.pl/fakty"
	today := "https://www.rmf24.pl/fakty/a,nId,1"
	old := "https://www.rmf24.pl/fakty/b,nId,2"
	listingHTML := `<a href="/fakty/a,nId,1">A</a><a href="/fakty/b,nId,2">B</a>` +
		`<a href="https://other.pl/x">X</a><a href="/galeria/zdjecia">G</a>`

	h := newHarness(t, map[string]string{
		listingURL: listingHTML,
		today:      articleHTML("Dzisiejszy", "2025-11-02T08:00:00Z"),
		old:        articleHTML("Stary", "2025-10-21T10:57:00Z"),
	}, nil)
	src := crawler.SourceDefinition{
		Name: "RMF24", URL: listingURL, ScrapeListing: true, OnlyToday: true,
		ArticleURLPattern: `/fakty/`,
	}
	require.NoError(t, src.Prepare())

	results := h.pipeline.RunSource(context.Background(), src)
	require.Len(t, results, 2)
	require.Equal(t, today, results[0].URL)
	require.Equal(t, crawler.ItemSaved, results[0].Status)
	require.Equal(t, old, results[1].URL)
	require.Equal(t, crawler.ItemSkipped, results[1].Status)
	require.Equal(t, ReasonNotToday, results[1].Reason)

	_, err := h.store.GetByURL(context.Background(), old)
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestRunSourceListingFetchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	src := crawler.SourceDefinition{Name: "RMF24", URL: "https://www.rmf24.pl/fakty", ScrapeListing: true}
	results := h.pipeline.RunSource(context.Background(), src)
	require.Len(t, results, 1)
	require.Equal(t, crawler.ItemFailed, results[0].Status)
}

func TestRunSourceFeedPrefersFeedTitleAndDate(t *testing.T) {
	t.Parallel()

	url := "https://tvn24.pl/a"
	feedDate := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, map[string]string{url: articleHTML("Tytuł strony", "")}, func(d *Deps) {
		d.Feeds = stubFeeds{entries: []crawler.FeedEntry{{Title: "Tytuł z RSS", URL: url, Published: &feedDate}}}
	})
	src := crawler.SourceDefinition{Name: "TVN24", RSSURL: "https://tvn24.pl/rss.xml"}

	results := h.pipeline.RunSource(context.Background(), src)
	require.Len(t, results, 1)
	require.Equal(t, crawler.ItemSaved, results[0].Status)

	rec, err := h.store.GetByURL(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, "Tytuł z RSS", *rec.Title)
	require.True(t, feedDate.Equal(*rec.PublishedAt))
}

func TestRunSourceFeedFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, func(d *Deps) { d.Feeds = stubFeeds{err: errors.New("bad feed")} })
	results := h.pipeline.RunSource(context.Background(), crawler.SourceDefinition{Name: "F", RSSURL: "https://f.pl/rss"})
	require.Len(t, results, 1)
	require.Equal(t, crawler.ItemFailed, results[0].Status)
}

func TestRunSourcePrompted(t *testing.T) {
	t.Parallel()

	a, b := "https://example.pl/a", "https://example.pl/b"
	pages := map[string]string{a: articleHTML("A", ""), b: articleHTML("B", "")}

	h := newHarness(t, pages, func(d *Deps) { d.Prompter = stubPrompter{answer: a + " , " + b} })
	results := h.pipeline.RunSource(context.Background(), crawler.SourceDefinition{Name: "Manual", AskForURL: true})
	require.Len(t, results, 2)
	require.Equal(t, crawler.ItemSaved, results[0].Status)
	require.Equal(t, crawler.ItemSaved, results[1].Status)

	h = newHarness(t, pages, func(d *Deps) { d.Prompter = stubPrompter{answer: "SKIP"} })
	results = h.pipeline.RunSource(context.Background(), crawler.SourceDefinition{Name: "Manual", AskForURL: true})
	require.Len(t, results, 1)
	require.Equal(t, crawler.ItemSkipped, results[0].Status)
	require.Equal(t, ReasonNoURL, results[0].Reason)
}

func TestProcessURLUsesSourceHints(t *testing.T) {
	t.Parallel()

	url := "https://example.pl/h"
	html := `<html><body><article>` + strings.Repeat("Ogólny tekst artykułu. ", 20) +
		`</article><div class="lead-text">Tekst z selektora.</div></body></html>`
	h := newHarness(t, map[string]string{url: html}, func(d *Deps) {
		d.Hints = stubHints{"Hinted": {"div.lead-text"}}
	})

	res := h.pipeline.ProcessURL(context.Background(), crawler.SourceDefinition{Name: "Hinted"}, url, nil)
	require.Equal(t, crawler.ItemSaved, res.Status)
	rec, err := h.store.GetByURL(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, "Tekst z selektora.", rec.Content)
}

func TestFetchURLsInfersSource(t *testing.T) {
	t.Parallel()

	known := "https://www.rmf24.pl/a"
	named := "https://news.example.com/b"
	bare := "https://www.plain.pl/c"
	h := newHarness(t, map[string]string{
		known: articleHTML("A", ""),
		named: `<meta property="og:site_name" content="Example News">` + articleHTML("B", ""),
		bare:  articleHTML("C", ""),
	}, func(d *Deps) {
		d.Sources = []crawler.SourceDefinition{{Name: "RMF24", URL: "https://rmf24.pl/fakty"}}
	})

	results := h.pipeline.FetchURLs(context.Background(), []string{known, named, bare})
	require.Len(t, results, 3)
	require.Equal(t, "RMF24", results[0].Source)
	require.Equal(t, "Example News", results[1].Source)
	require.Equal(t, "plain.pl", results[2].Source)
}

func TestSameDayUsesLocationOfNow(t *testing.T) {
	t.Parallel()

	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	now := time.Date(2025, 11, 2, 0, 30, 0, 0, warsaw)
	// 23:45 UTC on Nov 1 is 00:45 on Nov 2 in Warsaw.
	require.True(t, sameDay(time.Date(2025, 11, 1, 23, 45, 0, 0, time.UTC), now))
	require.False(t, sameDay(time.Date(2025, 11, 1, 22, 0, 0, 0, time.UTC), now))
}
