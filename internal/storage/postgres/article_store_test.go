package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

const (
	testID  = "0190f0a0-0000-7000-8000-000000000001"
	otherID = "0190f0a0-0000-7000-8000-000000000002"
)

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

func newMockStore(t *testing.T) (*ArticleStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	st, err := NewArticleStoreWithPool(mock, fixedIDs{id: testID})
	require.NoError(t, err)
	return st, mock
}

func strPtr(s string) *string { return &s }

func TestNewArticleStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewArticleStoreWithPool(nil, fixedIDs{})
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	_, err = NewArticleStoreWithPool(mock, nil)
	require.Error(t, err)
}

func TestNewArticleStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewArticleStore(context.Background(), Config{}, fixedIDs{})
	require.Error(t, err)
}

func TestSaveInsertsNewRecord(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	fetched := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	draft := crawler.ArticleDraft{
		Source:    "RMF24",
		URL:       "https://www.rmf24.pl/a,nId,1",
		Title:     strPtr("Tytuł"),
		Content:   "Treść",
		FetchedAt: fetched,
	}

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(testID, "RMF24", draft.URL, draft.Title, "Treść", (*time.Time)(nil), fetched, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(testID, true))

	res, err := st.Save(context.Background(), draft)
	require.NoError(t, err)
	require.Equal(t, crawler.SaveResult{ID: testID, Created: true}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportsFillUpdate(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(otherID, false))

	res, err := st.Save(context.Background(), crawler.ArticleDraft{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, crawler.SaveResult{ID: otherID, Updated: true}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNoChangeLooksUpExistingID(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id::text FROM articles WHERE url").
		WithArgs("https://example.com/a").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(otherID))

	res, err := st.Save(context.Background(), crawler.ArticleDraft{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, crawler.SaveResult{ID: otherID}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWrapsIOError(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err := st.Save(context.Background(), crawler.ArticleDraft{URL: "https://example.com/a"})
	var ioErr *crawler.StoreIOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, "save", ioErr.Op)
}

func TestGetByURLScansRecord(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	published := time.Date(2025, 11, 2, 10, 57, 0, 0, time.UTC)
	fetched := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "source", "url", "title", "content", "published_at", "fetched_at", "image_url", "analysis"}).
		AddRow(testID, "RMF24", "https://example.com/a", strPtr("Tytuł"), "Treść", &published, fetched, (*string)(nil),
			[]byte(`{"score":42,"label":"neutral","rationale":["ok"],"summary":"s","analyzed_at":"2025-11-03T00:00:00Z"}`))
	mock.ExpectQuery("SELECT id::text, source, url").WithArgs("https://example.com/a").WillReturnRows(rows)

	rec, err := st.GetByURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, testID, rec.ID)
	require.Equal(t, "Tytuł", *rec.Title)
	require.True(t, published.Equal(*rec.PublishedAt))
	require.Nil(t, rec.ImageURL)
	require.NotNil(t, rec.Analysis)
	require.InDelta(t, 42.0, rec.Analysis.Score, 0.001)
	require.Equal(t, "neutral", rec.Analysis.Label)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByURLNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id::text, source, url").WithArgs("https://example.com/missing").WillReturnError(pgx.ErrNoRows)

	_, err := st.GetByURL(context.Background(), "https://example.com/missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestGetByIDRejectsMalformedID(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	_, err := st.GetByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnprocessed(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	fetched := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "source", "url", "title", "content", "published_at", "fetched_at", "image_url", "analysis"}).
		AddRow(testID, "A", "https://example.com/a", (*string)(nil), "", (*time.Time)(nil), fetched, (*string)(nil), nil).
		AddRow(otherID, "B", "https://example.com/b", (*string)(nil), "", (*time.Time)(nil), fetched.Add(time.Minute), (*string)(nil), nil)
	mock.ExpectQuery("WHERE analyzed_at IS NULL ORDER BY fetched_at").WithArgs(5).WillReturnRows(rows)

	recs, err := st.ListUnprocessed(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, testID, recs[0].ID)
	require.Equal(t, otherID, recs[1].ID)
	require.Nil(t, recs[0].Analysis)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAnalysis(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	analyzed := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE articles SET analysis").
		WithArgs(testID, pgxmock.AnyArg(), analyzed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE articles SET analysis").
		WithArgs(otherID, pgxmock.AnyArg(), analyzed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	analysis := crawler.Analysis{Score: 80, Label: "clickbait", AnalyzedAt: analyzed}
	require.NoError(t, st.SaveAnalysis(context.Background(), testID, analysis))
	require.ErrorIs(t, st.SaveAnalysis(context.Background(), otherID, analysis), crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseClosesPool(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectClose()
	require.NoError(t, st.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
