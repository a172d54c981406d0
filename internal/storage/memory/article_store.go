package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/store"
)

// ArticleStore keeps articles in process memory. It is the development backend and the one
// tests run the pipeline against.
type ArticleStore struct {
	mu    sync.RWMutex
	ids   crawler.IDGenerator
	byID  map[string]crawler.ArticleRecord
	byURL map[string]string
}

// NewArticleStore constructs an ArticleStore that assigns ids with ids.
func NewArticleStore(ids crawler.IDGenerator) *ArticleStore {
	return &ArticleStore{
		ids:   ids,
		byID:  make(map[string]crawler.ArticleRecord),
		byURL: make(map[string]string),
	}
}

// Save inserts or fill-merges under a single lock.
func (s *ArticleStore) Save(_ context.Context, draft crawler.ArticleDraft) (crawler.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byURL[draft.URL]; ok {
		merged, changed := store.Merge(s.byID[id], draft)
		if changed {
			s.byID[id] = merged
		}
		return crawler.SaveResult{ID: id, Updated: changed}, nil
	}

	id, err := s.ids.NewID()
	if err != nil {
		return crawler.SaveResult{}, crawler.WrapStoreErr("save", err)
	}
	s.byID[id] = store.NewRecord(id, draft)
	s.byURL[draft.URL] = id
	return crawler.SaveResult{ID: id, Created: true}, nil
}

// GetByID fetches an article by id.
func (s *ArticleStore) GetByID(_ context.Context, id string) (crawler.ArticleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return crawler.ArticleRecord{}, crawler.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// GetByURL fetches an article by its URL.
func (s *ArticleStore) GetByURL(_ context.Context, url string) (crawler.ArticleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return crawler.ArticleRecord{}, crawler.ErrNotFound
	}
	return cloneRecord(s.byID[id]), nil
}

// ListUnprocessed returns copies of records without analysis, oldest fetch first.
func (s *ArticleStore) ListUnprocessed(_ context.Context, limit int) ([]crawler.ArticleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ArticleRecord, 0)
	for _, rec := range s.byID {
		if rec.Analysis == nil {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FetchedAt.Equal(out[j].FetchedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FetchedAt.Before(out[j].FetchedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveAnalysis attaches an analysis to an existing record.
func (s *ArticleStore) SaveAnalysis(_ context.Context, id string, analysis crawler.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return crawler.ErrNotFound
	}
	a := cloneAnalysis(analysis)
	rec.Analysis = &a
	s.byID[id] = rec
	return nil
}

// Close is a no-op.
func (s *ArticleStore) Close() error {
	return nil
}

func cloneRecord(rec crawler.ArticleRecord) crawler.ArticleRecord {
	out := rec
	if rec.Title != nil {
		v := *rec.Title
		out.Title = &v
	}
	if rec.PublishedAt != nil {
		v := *rec.PublishedAt
		out.PublishedAt = &v
	}
	if rec.ImageURL != nil {
		v := *rec.ImageURL
		out.ImageURL = &v
	}
	if rec.Analysis != nil {
		a := cloneAnalysis(*rec.Analysis)
		out.Analysis = &a
	}
	return out
}

func cloneAnalysis(a crawler.Analysis) crawler.Analysis {
	out := a
	out.Rationale = append([]string(nil), a.Rationale...)
	if a.Signals != nil {
		out.Signals = make(map[string]any, len(a.Signals))
		for k, v := range a.Signals {
			out.Signals[k] = v
		}
	}
	return out
}
