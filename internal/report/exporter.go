// Package report writes article records and analysis results as JSON objects through a blob
// store. Object names are never reused: a taken name gets a numeric suffix.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// Object name prefixes inside the blob store.
const (
	ScrapedDir  = "scraped"
	AnalysisDir = "analysis"
	AgentDir    = "agent"
)

// PreviewRunes is the length of content_preview.
const PreviewRunes = 300

const (
	contentTypeJSON = "application/json"
	maxSuffix       = 1000
	batchLayout     = "2006-01-02T150405Z"
)

// RecordJSON is the exported shape of an ArticleRecord.
type RecordJSON struct {
	ID             string     `json:"id"`
	Source         string     `json:"source"`
	Title          *string    `json:"title"`
	URL            string     `json:"url"`
	Published      *time.Time `json:"published"`
	FetchedAt      time.Time  `json:"fetched_at"`
	ImageURL       *string    `json:"image_url"`
	Content        string     `json:"content"`
	ContentPreview string     `json:"content_preview"`
}

// AnalysisJSON is the exported shape of a stored analysis.
type AnalysisJSON struct {
	ID string `json:"id"`
	crawler.Analysis
}

// NewRecordJSON converts a record into its exported form.
func NewRecordJSON(rec crawler.ArticleRecord) RecordJSON {
	return RecordJSON{
		ID:             rec.ID,
		Source:         rec.Source,
		Title:          rec.Title,
		URL:            rec.URL,
		Published:      rec.PublishedAt,
		FetchedAt:      rec.FetchedAt,
		ImageURL:       rec.ImageURL,
		Content:        rec.Content,
		ContentPreview: Preview(rec.Content, PreviewRunes),
	}
}

// Preview returns the first n runes of s.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Exporter writes JSON documents to a blob store.
type Exporter struct {
	blobs  crawler.BlobStore
	clock  crawler.Clock
	logger *zap.Logger
}

// NewExporter wires an exporter.
func NewExporter(blobs crawler.BlobStore, clock crawler.Clock, logger *zap.Logger) (*Exporter, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{blobs: blobs, clock: clock, logger: logger}, nil
}

// ExportRecord writes scraped_<id>.json and returns its URI.
func (e *Exporter) ExportRecord(ctx context.Context, rec crawler.ArticleRecord) (string, error) {
	return e.write(ctx, ScrapedDir, "scraped_"+rec.ID, NewRecordJSON(rec))
}

// ExportAnalysis writes analysis_<id>.json and returns its URI.
func (e *Exporter) ExportAnalysis(ctx context.Context, id string, analysis crawler.Analysis) (string, error) {
	return e.write(ctx, AnalysisDir, "analysis_"+id, AnalysisJSON{ID: id, Analysis: analysis})
}

// ExportBatch writes every record as one JSON array for the scoring agent.
func (e *Exporter) ExportBatch(ctx context.Context, recs []crawler.ArticleRecord) (string, error) {
	items := make([]RecordJSON, 0, len(recs))
	for _, rec := range recs {
		items = append(items, NewRecordJSON(rec))
	}
	stamp := e.clock.Now().UTC().Format(batchLayout)
	return e.write(ctx, AgentDir, "scraped_for_agent_"+stamp, items)
}

func (e *Exporter) write(ctx context.Context, dir, stem string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", stem, err)
	}
	for n := 0; n <= maxSuffix; n++ {
		name := stem + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", stem, n)
		}
		uri, err := e.blobs.PutObject(ctx, path.Join(dir, name), contentTypeJSON, data)
		if errors.Is(err, crawler.ErrObjectExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		e.logger.Debug("exported object", zap.String("uri", uri))
		return uri, nil
	}
	return "", fmt.Errorf("write %s: no free name after %d attempts", stem, maxSuffix)
}
