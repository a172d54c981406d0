package store

import (
	"context"
	"strings"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// ArticleStore persists ArticleRecords keyed by URL.
type ArticleStore interface {
	// Save inserts a record for an unseen URL or fill-merges the draft into the existing one.
	// The lookup and write are atomic, so concurrent saves of one URL yield one record.
	Save(ctx context.Context, draft crawler.ArticleDraft) (crawler.SaveResult, error)
	// GetByID returns crawler.ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (crawler.ArticleRecord, error)
	// GetByURL returns crawler.ErrNotFound for unknown URLs.
	GetByURL(ctx context.Context, url string) (crawler.ArticleRecord, error)
	// ListUnprocessed returns records without an analysis, oldest fetch first. A non-positive
	// limit returns all of them.
	ListUnprocessed(ctx context.Context, limit int) ([]crawler.ArticleRecord, error)
	// SaveAnalysis attaches the scoring agent's result to a record.
	SaveAnalysis(ctx context.Context, id string, analysis crawler.Analysis) error
	// Close releases backend resources.
	Close() error
}

// Merge applies the fill-missing rule: only fields that are empty on existing are taken from
// draft, and FetchedAt moves forward only when something was filled. It reports whether the
// record changed.
func Merge(existing crawler.ArticleRecord, draft crawler.ArticleDraft) (crawler.ArticleRecord, bool) {
	changed := false
	if existing.Source == "" && draft.Source != "" {
		existing.Source = draft.Source
		changed = true
	}
	if isBlank(existing.Title) && !isBlank(draft.Title) {
		title := *draft.Title
		existing.Title = &title
		changed = true
	}
	if strings.TrimSpace(existing.Content) == "" && strings.TrimSpace(draft.Content) != "" {
		existing.Content = draft.Content
		changed = true
	}
	if existing.PublishedAt == nil && draft.PublishedAt != nil {
		published := *draft.PublishedAt
		existing.PublishedAt = &published
		changed = true
	}
	if isBlank(existing.ImageURL) && !isBlank(draft.ImageURL) {
		image := *draft.ImageURL
		existing.ImageURL = &image
		changed = true
	}
	if changed && draft.FetchedAt.After(existing.FetchedAt) {
		existing.FetchedAt = draft.FetchedAt
	}
	return existing, changed
}

// NewRecord builds the full record persisted for a previously unseen URL.
func NewRecord(id string, draft crawler.ArticleDraft) crawler.ArticleRecord {
	rec := crawler.ArticleRecord{
		ID:        id,
		Source:    draft.Source,
		URL:       draft.URL,
		Content:   draft.Content,
		FetchedAt: draft.FetchedAt,
	}
	if !isBlank(draft.Title) {
		title := *draft.Title
		rec.Title = &title
	}
	if draft.PublishedAt != nil {
		published := *draft.PublishedAt
		rec.PublishedAt = &published
	}
	if !isBlank(draft.ImageURL) {
		image := *draft.ImageURL
		rec.ImageURL = &image
	}
	return rec
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
