// Package postgres provides the Postgres-backed lead store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
	"github.com/JakeFAU/website-growth-analyzer/internal/metrics"
)

// DefaultMaxConns bounds the pool when the config leaves it unset.
const DefaultMaxConns = 10

// LeadStoreConfig controls the Postgres connection pool used for leads.
type LeadStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// LeadStore writes and reads lead rows.
type LeadStore struct {
	pool   pool
	logger *zap.Logger
}

// NewLeadStore connects a pool using cfg.
func NewLeadStore(ctx context.Context, cfg LeadStoreConfig, logger *zap.Logger) (*LeadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = DefaultMaxConns
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
	return NewLeadStoreWithPool(p, logger)
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(p pool, logger *zap.Logger) (*LeadStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadStore{pool: p, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const migrateSQL = `
CREATE TABLE IF NOT EXISTS leads (
	id                  BIGSERIAL PRIMARY KEY,
	url                 TEXT        NOT NULL,
	domain              TEXT        NOT NULL,
	growth_score        INTEGER     NOT NULL CHECK (growth_score BETWEEN 0 AND 100),
	analysis_summary    TEXT        NOT NULL DEFAULT '',
	analysis_categories JSONB       NOT NULL DEFAULT '[]'::jsonb,
	recommendations     JSONB       NOT NULL DEFAULT '[]'::jsonb,
	content_length      INTEGER     NOT NULL DEFAULT 0,
	page_title          TEXT        NOT NULL DEFAULT '',
	client_ip           TEXT        NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_day         DATE        NOT NULL,
	analyzed_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS leads_url_day_key ON leads (url, created_day);
CREATE INDEX IF NOT EXISTS leads_domain_idx ON leads (domain);
CREATE INDEX IF NOT EXISTS leads_growth_score_idx ON leads (growth_score);
CREATE INDEX IF NOT EXISTS leads_created_at_idx ON leads (created_at DESC);
CREATE INDEX IF NOT EXISTS leads_url_idx ON leads (url);
`

// Migrate creates the leads table and its indexes when missing.
func (s *LeadStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrateSQL); err != nil {
		return fmt.Errorf("migrate leads: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO leads (
	url,
	domain,
	growth_score,
	analysis_summary,
	analysis_categories,
	recommendations,
	content_length,
	page_title,
	client_ip,
	created_at,
	created_day,
	analyzed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (url, created_day) DO UPDATE SET
	growth_score = EXCLUDED.growth_score,
	analysis_summary = EXCLUDED.analysis_summary,
	analysis_categories = EXCLUDED.analysis_categories,
	recommendations = EXCLUDED.recommendations,
	content_length = EXCLUDED.content_length,
	page_title = EXCLUDED.page_title,
	client_ip = EXCLUDED.client_ip,
	analyzed_at = EXCLUDED.analyzed_at
RETURNING id, (xmax = 0) AS inserted`

// Save upserts record keyed by (url, UTC day). It returns nil on any failure.
func (s *LeadStore) Save(ctx context.Context, record analysis.LeadRecord) *analysis.SavedRef {
	if s == nil || s.pool == nil {
		return nil
	}
	args := []any{
		record.URL,
		record.Domain,
		record.GrowthScore,
		record.Summary,
		[]byte(record.Categories),
		[]byte(record.Recommendations),
		record.ContentLength,
		record.PageTitle,
		record.ClientIP,
		record.CreatedAt,
		analysis.LeadDay(record.CreatedAt),
		record.AnalyzedAt,
	}
	var ref analysis.SavedRef
	if err := s.pool.QueryRow(ctx, upsertSQL, args...).Scan(&ref.ID, &ref.Inserted); err != nil {
		metrics.ObserveLeadSave(metrics.LeadSaveError)
		s.logger.Warn("save lead failed", zap.String("url", record.URL), zap.Error(err))
		return nil
	}
	if ref.Inserted {
		metrics.ObserveLeadSave(metrics.LeadSaveInserted)
	} else {
		metrics.ObserveLeadSave(metrics.LeadSaveUpdated)
	}
	s.logger.Debug("lead saved",
		zap.Int64("id", ref.ID),
		zap.Bool("inserted", ref.Inserted),
		zap.String("domain", record.Domain),
	)
	return &ref
}

const statsSQL = `
SELECT
	COUNT(*),
	COUNT(DISTINCT domain),
	COALESCE(AVG(growth_score), 0)::float8,
	COUNT(*) FILTER (WHERE growth_score >= $1),
	COUNT(*) FILTER (WHERE growth_score >= $2 AND growth_score < $1),
	COUNT(*) FILTER (WHERE growth_score < $3),
	COUNT(*) FILTER (WHERE created_at >= now() - interval '24 hours'),
	COUNT(*) FILTER (WHERE created_at >= now() - interval '7 days')
FROM leads`

const leadColumns = `id, url, domain, growth_score, analysis_summary, analysis_categories,
	recommendations, content_length, page_title, client_ip, created_at, analyzed_at`

// Stats aggregates the lead table. Failures are logged and yield empty Stats.
func (s *LeadStore) Stats(ctx context.Context) analysis.Stats {
	stats := analysis.Stats{Recent: []analysis.LeadRecord{}}
	if s == nil || s.pool == nil {
		return stats
	}
	err := s.pool.QueryRow(ctx, statsSQL,
		analysis.ExcellentThreshold,
		analysis.GoodThreshold,
		analysis.PoorThreshold,
	).Scan(
		&stats.Total,
		&stats.UniqueDomains,
		&stats.AverageScore,
		&stats.Excellent,
		&stats.Good,
		&stats.Poor,
		&stats.Last24h,
		&stats.Last7d,
	)
	if err != nil {
		s.logger.Warn("lead stats failed", zap.Error(err))
		return analysis.Stats{Recent: []analysis.LeadRecord{}}
	}
	recent, err := s.query(ctx, "SELECT "+leadColumns+" FROM leads ORDER BY created_at DESC, id DESC LIMIT $1",
		analysis.RecentLimit)
	if err != nil {
		s.logger.Warn("recent leads failed", zap.Error(err))
		return stats
	}
	stats.Recent = recent
	return stats
}

// List returns every lead, newest first.
func (s *LeadStore) List(ctx context.Context) ([]analysis.LeadRecord, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("lead store is not configured")
	}
	return s.query(ctx, "SELECT "+leadColumns+" FROM leads ORDER BY created_at DESC, id DESC")
}

// Ping checks connectivity.
func (s *LeadStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("lead store is not configured")
	}
	return s.pool.Ping(ctx)
}

func (s *LeadStore) query(ctx context.Context, sql string, args ...any) ([]analysis.LeadRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := []analysis.LeadRecord{}
	for rows.Next() {
		var (
			lead            analysis.LeadRecord
			categories      []byte
			recommendations []byte
		)
		if err := rows.Scan(
			&lead.ID,
			&lead.URL,
			&lead.Domain,
			&lead.GrowthScore,
			&lead.Summary,
			&categories,
			&recommendations,
			&lead.ContentLength,
			&lead.PageTitle,
			&lead.ClientIP,
			&lead.CreatedAt,
			&lead.AnalyzedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		lead.Categories = categories
		lead.Recommendations = recommendations
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}
