// Package feed reads RSS/Atom feeds into article seeds.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/datenorm"
)

// Reader fetches and parses feeds.
type Reader struct {
	client    *http.Client
	userAgent string
	dates     *datenorm.Normalizer
}

// NewReader builds a Reader. Dates gofeed cannot parse are retried through dates.
func NewReader(client *http.Client, userAgent string, dates *datenorm.Normalizer) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if dates == nil {
		dates = datenorm.New(nil)
	}
	return &Reader{client: client, userAgent: userAgent, dates: dates}
}

// Entries returns one seed per feed item that carries a link.
func (r *Reader) Entries(ctx context.Context, feedURL string) ([]crawler.FeedEntry, error) {
	parser := gofeed.NewParser()
	parser.Client = r.client
	if r.userAgent != "" {
		parser.UserAgent = r.userAgent
	}
	parsed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, &crawler.FetchError{URL: feedURL, Strategy: crawler.StrategyDirect, Err: fmt.Errorf("parse feed: %w", err)}
	}
	return r.convert(parsed.Items), nil
}

func (r *Reader) convert(items []*gofeed.Item) []crawler.FeedEntry {
	out := make([]crawler.FeedEntry, 0, len(items))
	for _, item := range items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		entry := crawler.FeedEntry{
			Title:        strings.TrimSpace(item.Title),
			URL:          strings.TrimSpace(item.Link),
			PublishedRaw: item.Published,
		}
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			entry.Published = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			entry.Published = &t
		case item.Published != "":
			entry.Published = r.dates.NormalizeString(item.Published).Pointer()
		}
		out = append(out, entry)
	}
	return out
}
