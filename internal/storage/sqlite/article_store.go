// Package sqlite provides a single-file SQLite article store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/store"
)

// Timestamps are stored as fixed-width UTC text so ORDER BY on the column sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL UNIQUE,
	title TEXT,
	content TEXT NOT NULL DEFAULT '',
	published_at TEXT,
	fetched_at TEXT NOT NULL,
	image_url TEXT,
	analysis TEXT,
	analyzed_at TEXT
);

CREATE INDEX IF NOT EXISTS articles_unprocessed_idx ON articles (analyzed_at, fetched_at);
`

const selectArticleColumns = `SELECT id, source, url, title, content, published_at, fetched_at, image_url, analysis FROM articles`

// ArticleStore persists articles in a SQLite database file.
type ArticleStore struct {
	db  *sql.DB
	ids crawler.IDGenerator
}

// NewArticleStore opens (or creates) the database at path and ensures the schema exists.
func NewArticleStore(path string, ids crawler.IDGenerator) (*ArticleStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite.path is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers; Save relies on it for lookup+insert atomicity.
	db.SetMaxOpenConns(1)

	s := &ArticleStore{db: db, ids: ids}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *ArticleStore) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *ArticleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save looks the URL up and inserts or fill-merges inside one transaction.
func (s *ArticleStore) Save(ctx context.Context, draft crawler.ArticleDraft) (crawler.SaveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return crawler.SaveResult{}, crawler.WrapStoreErr("save", fmt.Errorf("begin: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	existing, err := scanArticle(tx.QueryRowContext(ctx, selectArticleColumns+` WHERE url = ?`, draft.URL))
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		id, err := s.ids.NewID()
		if err != nil {
			return crawler.SaveResult{}, crawler.WrapStoreErr("save", err)
		}
		rec := store.NewRecord(id, draft)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO articles (id, source, url, title, content, published_at, fetched_at, image_url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Source, rec.URL, rec.Title, rec.Content,
			formatTime(rec.PublishedAt), formatTime(&rec.FetchedAt), rec.ImageURL,
		); err != nil {
			return crawler.SaveResult{}, crawler.WrapStoreErr("save", fmt.Errorf("insert article: %w", err))
		}
		if err := tx.Commit(); err != nil {
			return crawler.SaveResult{}, crawler.WrapStoreErr("save", fmt.Errorf("commit: %w", err))
		}
		return crawler.SaveResult{ID: rec.ID, Created: true}, nil
	case err != nil:
		return crawler.SaveResult{}, crawler.WrapStoreErr("save", err)
	}

	merged, changed := store.Merge(existing, draft)
	if !changed {
		return crawler.SaveResult{ID: existing.ID}, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE articles SET source = ?, title = ?, content = ?, published_at = ?, fetched_at = ?, image_url = ?
		WHERE id = ?`,
		merged.Source, merged.Title, merged.Content, formatTime(merged.PublishedAt),
		formatTime(&merged.FetchedAt), merged.ImageURL, merged.ID,
	); err != nil {
		return crawler.SaveResult{}, crawler.WrapStoreErr("save", fmt.Errorf("update article: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return crawler.SaveResult{}, crawler.WrapStoreErr("save", fmt.Errorf("commit: %w", err))
	}
	return crawler.SaveResult{ID: merged.ID, Updated: true}, nil
}

// GetByID fetches an article by id.
func (s *ArticleStore) GetByID(ctx context.Context, id string) (crawler.ArticleRecord, error) {
	rec, err := scanArticle(s.db.QueryRowContext(ctx, selectArticleColumns+` WHERE id = ?`, id))
	return rec, crawler.WrapStoreErr("get by id", err)
}

// GetByURL fetches an article by URL.
func (s *ArticleStore) GetByURL(ctx context.Context, url string) (crawler.ArticleRecord, error) {
	rec, err := scanArticle(s.db.QueryRowContext(ctx, selectArticleColumns+` WHERE url = ?`, url))
	return rec, crawler.WrapStoreErr("get by url", err)
}

// ListUnprocessed returns articles without analysis, oldest fetch first.
func (s *ArticleStore) ListUnprocessed(ctx context.Context, limit int) ([]crawler.ArticleRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded.
	}
	rows, err := s.db.QueryContext(ctx,
		selectArticleColumns+` WHERE analyzed_at IS NULL ORDER BY fetched_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, crawler.WrapStoreErr("list unprocessed", err)
	}
	defer rows.Close()

	out := make([]crawler.ArticleRecord, 0)
	for rows.Next() {
		rec, err := scanArticle(rows)
		if err != nil {
			return nil, crawler.WrapStoreErr("list unprocessed", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, crawler.WrapStoreErr("list unprocessed", err)
	}
	return out, nil
}

// SaveAnalysis stores the analysis JSON and marks the record processed.
func (s *ArticleStore) SaveAnalysis(ctx context.Context, id string, analysis crawler.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET analysis = ?, analyzed_at = ? WHERE id = ?`,
		string(payload), formatTime(&analysis.AnalyzedAt), id)
	if err != nil {
		return crawler.WrapStoreErr("save analysis", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return crawler.WrapStoreErr("save analysis", err)
	}
	if n == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (crawler.ArticleRecord, error) {
	var (
		rec                 crawler.ArticleRecord
		title, image        sql.NullString
		published, analysis sql.NullString
		fetched             string
	)
	err := row.Scan(&rec.ID, &rec.Source, &rec.URL, &title, &rec.Content, &published, &fetched, &image, &analysis)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.ArticleRecord{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.ArticleRecord{}, fmt.Errorf("scan article: %w", err)
	}
	if title.Valid {
		rec.Title = &title.String
	}
	if image.Valid {
		rec.ImageURL = &image.String
	}
	if published.Valid {
		t, err := parseTime(published.String)
		if err != nil {
			return crawler.ArticleRecord{}, err
		}
		rec.PublishedAt = &t
	}
	if rec.FetchedAt, err = parseTime(fetched); err != nil {
		return crawler.ArticleRecord{}, err
	}
	if analysis.Valid && analysis.String != "" {
		var a crawler.Analysis
		if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
			return crawler.ArticleRecord{}, fmt.Errorf("decode analysis: %w", err)
		}
		rec.Analysis = &a
	}
	return rec, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
