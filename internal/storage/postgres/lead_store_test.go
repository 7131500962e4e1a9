package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

var leadRowColumns = []string{
	"id", "url", "domain", "growth_score", "analysis_summary", "analysis_categories",
	"recommendations", "content_length", "page_title", "client_ip", "created_at", "analyzed_at",
}

// upsertArgs matches the twelve positional parameters of upsertSQL.
func upsertArgs() []any {
	args := make([]any, 12)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMockStore(t *testing.T) (*LeadStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewLeadStoreWithPool(mock, nil)
	require.NoError(t, err)
	return store, mock
}

func sampleRecord(now time.Time) analysis.LeadRecord {
	return analysis.LeadRecord{
		URL:             "https://www.acme.test/pricing",
		Domain:          "acme.test",
		GrowthScore:     72,
		Summary:         "Solid",
		Categories:      json.RawMessage(`[]`),
		Recommendations: json.RawMessage(`[{"priority":"High"}]`),
		ContentLength:   1200,
		PageTitle:       "Acme",
		ClientIP:        "203.0.113.9",
		CreatedAt:       now,
		AnalyzedAt:      now,
	}
}

func TestSaveUpsertsByURLAndDay(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	rec := sampleRecord(now)

	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(
			rec.URL,
			rec.Domain,
			rec.GrowthScore,
			rec.Summary,
			[]byte(`[]`),
			[]byte(`[{"priority":"High"}]`),
			rec.ContentLength,
			rec.PageTitle,
			rec.ClientIP,
			now,
			time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
			now,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(int64(7), true))
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(upsertArgs()...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(int64(7), false))

	first := store.Save(context.Background(), rec)
	require.NotNil(t, first)
	assert.Equal(t, analysis.SavedRef{ID: 7, Inserted: true}, *first)

	second := store.Save(context.Background(), rec)
	require.NotNil(t, second)
	assert.Equal(t, int64(7), second.ID)
	assert.False(t, second.Inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReturnsNilOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(upsertArgs()...).
		WillReturnError(errors.New("connection refused"))

	ref := store.Save(context.Background(), sampleRecord(time.Now().UTC()))
	assert.Nil(t, ref)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT\\s+COUNT\\(\\*\\)").
		WithArgs(analysis.ExcellentThreshold, analysis.GoodThreshold, analysis.PoorThreshold).
		WillReturnRows(pgxmock.NewRows([]string{"total", "domains", "avg", "excellent", "good", "poor", "d1", "d7"}).
			AddRow(int64(12), int64(9), 61.5, int64(3), int64(4), int64(2), int64(1), int64(5)))
	mock.ExpectQuery("FROM leads ORDER BY created_at DESC, id DESC LIMIT").
		WithArgs(analysis.RecentLimit).
		WillReturnRows(pgxmock.NewRows(leadRowColumns).
			AddRow(int64(12), "https://acme.test", "acme.test", 72, "Solid", []byte(`[]`), []byte(`[]`),
				1200, "Acme", "203.0.113.9", now, now))

	stats := store.Stats(context.Background())
	assert.Equal(t, int64(12), stats.Total)
	assert.Equal(t, int64(9), stats.UniqueDomains)
	assert.InDelta(t, 61.5, stats.AverageScore, 1e-9)
	assert.Equal(t, int64(3), stats.Excellent)
	assert.Equal(t, int64(4), stats.Good)
	assert.Equal(t, int64(2), stats.Poor)
	assert.Equal(t, int64(1), stats.Last24h)
	assert.Equal(t, int64(5), stats.Last7d)
	require.Len(t, stats.Recent, 1)
	assert.Equal(t, "acme.test", stats.Recent[0].Domain)
	assert.JSONEq(t, `[]`, string(stats.Recent[0].Categories))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsFailureYieldsEmpty(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT\\s+COUNT\\(\\*\\)").
		WithArgs(analysis.ExcellentThreshold, analysis.GoodThreshold, analysis.PoorThreshold).
		WillReturnError(errors.New("down"))

	stats := store.Stats(context.Background())
	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.Recent)
	assert.Empty(t, stats.Recent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	newer := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-48 * time.Hour)

	mock.ExpectQuery("FROM leads ORDER BY created_at DESC").
		WillReturnRows(pgxmock.NewRows(leadRowColumns).
			AddRow(int64(2), "https://b.test", "b.test", 80, "", []byte(`[]`), []byte(`[]`), 500, "", "", newer, newer).
			AddRow(int64(1), "https://a.test", "a.test", 40, "", []byte(`[]`), []byte(`[]`), 400, "", "", older, older))

	leads, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, int64(2), leads[0].ID)
	assert.Equal(t, "a.test", leads[1].Domain)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPropagatesErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM leads").WillReturnError(errors.New("down"))

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query leads")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS leads").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	require.NoError(t, store.Ping(context.Background()))
	require.Error(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLeadStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewLeadStore(context.Background(), LeadStoreConfig{}, nil)
	require.Error(t, err)

	_, err = NewLeadStoreWithPool(nil, nil)
	require.Error(t, err)
}
