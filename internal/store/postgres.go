package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/db"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an open pool. The store takes ownership of it.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_results (
	id                 UUID PRIMARY KEY,
	business_id        TEXT NOT NULL,
	source             TEXT NOT NULL,
	match_confidence   TEXT NOT NULL,
	match_score        DOUBLE PRECISION NOT NULL,
	data_version       TEXT NOT NULL DEFAULT '',
	checksum           TEXT NOT NULL DEFAULT '',
	data_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	completeness_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_usd           NUMERIC(12,6) NOT NULL DEFAULT 0,
	raw_data           JSONB,
	processed_data     JSONB,
	enriched_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_results_business ON enrichment_results(business_id, enriched_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveResults(ctx context.Context, results []model.EnrichmentResult) error {
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		enc, err := encode(r)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			uuid.New(), r.BusinessID, string(r.Source), string(r.MatchConfidence), r.MatchScore,
			r.DataVersion, r.Checksum, r.DataQualityScore, r.CompletenessScore,
			r.CostUSD, enc.raw, enc.processed, r.EnrichedAt.UTC(),
		})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "enrichment_results", columns, rows); err != nil {
		return eris.Wrap(err, "postgres: save results")
	}
	return nil
}

func (s *PostgresStore) LastEnriched(ctx context.Context, businessID string) (time.Time, bool, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT enriched_at FROM enrichment_results WHERE business_id = $1 ORDER BY enriched_at DESC LIMIT 1`,
		businessID,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "postgres: last enriched")
	}
	return ts, true, nil
}

func (s *PostgresStore) History(ctx context.Context, businessID string) ([]model.EnrichmentResult, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+strings.Join(columns[1:], ", ")+
			" FROM enrichment_results WHERE business_id = $1 ORDER BY enriched_at", businessID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: history")
	}
	defer rows.Close()

	var out []model.EnrichmentResult
	for rows.Next() {
		var (
			r                      model.EnrichmentResult
			source, confidence     string
			rawJSON, processedJSON []byte
		)
		if err := rows.Scan(
			&r.BusinessID, &source, &confidence, &r.MatchScore,
			&r.DataVersion, &r.Checksum, &r.DataQualityScore, &r.CompletenessScore,
			&r.CostUSD, &rawJSON, &processedJSON, &r.EnrichedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		r.Source = model.Source(source)
		r.MatchConfidence = model.Confidence(confidence)
		if err := decodeInto(&r, rawJSON, processedJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate history")
}
