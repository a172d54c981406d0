// Package postgres provides the Postgres-backed article store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ArticleStore persists articles in the articles table.
type ArticleStore struct {
	pool pool
	ids  crawler.IDGenerator
}

// NewArticleStore connects a pool using cfg.
func NewArticleStore(ctx context.Context, cfg Config, ids crawler.IDGenerator) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArticleStore{pool: p, ids: ids}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(p pool, ids crawler.IDGenerator) (*ArticleStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &ArticleStore{pool: p, ids: ids}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// A conflicting row is only touched when the draft fills at least one empty column; otherwise
// RETURNING yields no row and Save looks the id up.
const upsertArticleSQL = `
INSERT INTO articles AS a (id, source, url, title, content, published_at, fetched_at, image_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (url) DO UPDATE SET
	source = CASE WHEN a.source = '' THEN EXCLUDED.source ELSE a.source END,
	title = CASE WHEN COALESCE(btrim(a.title), '') = '' THEN COALESCE(EXCLUDED.title, a.title) ELSE a.title END,
	content = CASE WHEN btrim(a.content) = '' THEN EXCLUDED.content ELSE a.content END,
	published_at = COALESCE(a.published_at, EXCLUDED.published_at),
	image_url = CASE WHEN COALESCE(btrim(a.image_url), '') = '' THEN COALESCE(EXCLUDED.image_url, a.image_url) ELSE a.image_url END,
	fetched_at = GREATEST(a.fetched_at, EXCLUDED.fetched_at)
WHERE (a.source = '' AND EXCLUDED.source <> '')
	OR (COALESCE(btrim(a.title), '') = '' AND COALESCE(btrim(EXCLUDED.title), '') <> '')
	OR (btrim(a.content) = '' AND btrim(EXCLUDED.content) <> '')
	OR (a.published_at IS NULL AND EXCLUDED.published_at IS NOT NULL)
	OR (COALESCE(btrim(a.image_url), '') = '' AND COALESCE(btrim(EXCLUDED.image_url), '') <> '')
RETURNING id::text, (xmax = 0) AS inserted`

const selectArticleColumns = `SELECT id::text, source, url, title, content, published_at, fetched_at, image_url, analysis FROM articles`

// Save upserts the draft in one statement so concurrent saves of a URL cannot duplicate it.
func (s *ArticleStore) Save(ctx context.Context, draft crawler.ArticleDraft) (crawler.SaveResult, error) {
	newID, err := s.ids.NewID()
	if err != nil {
		return crawler.SaveResult{}, crawler.WrapStoreErr("save", err)
	}
	rec := store.NewRecord(newID, draft)

	var (
		id       string
		inserted bool
	)
	err = s.pool.QueryRow(ctx, upsertArticleSQL,
		rec.ID, rec.Source, rec.URL, rec.Title, rec.Content, rec.PublishedAt, rec.FetchedAt, rec.ImageURL,
	).Scan(&id, &inserted)
	switch {
	case err == nil:
		return crawler.SaveResult{ID: id, Created: inserted, Updated: !inserted}, nil
	case errors.Is(err, pgx.ErrNoRows):
		if err := s.pool.QueryRow(ctx, `SELECT id::text FROM articles WHERE url = $1`, rec.URL).Scan(&id); err != nil {
			return crawler.SaveResult{}, crawler.WrapStoreErr("save", fmt.Errorf("lookup existing: %w", err))
		}
		return crawler.SaveResult{ID: id}, nil
	default:
		return crawler.SaveResult{}, crawler.WrapStoreErr("save", fmt.Errorf("upsert article: %w", err))
	}
}

// GetByID fetches an article by id. Ids that are not UUIDs cannot exist.
func (s *ArticleStore) GetByID(ctx context.Context, id string) (crawler.ArticleRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return crawler.ArticleRecord{}, crawler.ErrNotFound
	}
	rec, err := scanArticle(s.pool.QueryRow(ctx, selectArticleColumns+` WHERE id = $1`, id))
	return rec, crawler.WrapStoreErr("get by id", err)
}

// GetByURL fetches an article by URL.
func (s *ArticleStore) GetByURL(ctx context.Context, url string) (crawler.ArticleRecord, error) {
	rec, err := scanArticle(s.pool.QueryRow(ctx, selectArticleColumns+` WHERE url = $1`, url))
	return rec, crawler.WrapStoreErr("get by url", err)
}

// ListUnprocessed returns articles without analysis, oldest fetch first.
func (s *ArticleStore) ListUnprocessed(ctx context.Context, limit int) ([]crawler.ArticleRecord, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx,
		selectArticleColumns+` WHERE analyzed_at IS NULL ORDER BY fetched_at ASC, id ASC LIMIT $1`, limitArg)
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
	if _, err := uuid.Parse(id); err != nil {
		return crawler.ErrNotFound
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET analysis = $2, analyzed_at = $3 WHERE id = $1`,
		id, payload, analysis.AnalyzedAt)
	if err != nil {
		return crawler.WrapStoreErr("save analysis", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

func scanArticle(row pgx.Row) (crawler.ArticleRecord, error) {
	var (
		rec          crawler.ArticleRecord
		analysisJSON []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.Source,
		&rec.URL,
		&rec.Title,
		&rec.Content,
		&rec.PublishedAt,
		&rec.FetchedAt,
		&rec.ImageURL,
		&analysisJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.ArticleRecord{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.ArticleRecord{}, fmt.Errorf("scan article: %w", err)
	}
	if len(analysisJSON) > 0 {
		var a crawler.Analysis
		if err := json.Unmarshal(analysisJSON, &a); err != nil {
			return crawler.ArticleRecord{}, fmt.Errorf("decode analysis: %w", err)
		}
		rec.Analysis = &a
	}
	return rec, nil
}
