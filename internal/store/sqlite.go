package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

// sqliteTime is fixed width so text ordering matches time ordering.
const sqliteTime = "2006-01-02 15:04:05.000000000"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_results (
	id                 TEXT PRIMARY KEY,
	business_id        TEXT NOT NULL,
	source             TEXT NOT NULL,
	match_confidence   TEXT NOT NULL,
	match_score        REAL NOT NULL,
	data_version       TEXT NOT NULL DEFAULT '',
	checksum           TEXT NOT NULL DEFAULT '',
	data_quality_score REAL NOT NULL DEFAULT 0,
	completeness_score REAL NOT NULL DEFAULT 0,
	cost_usd           REAL NOT NULL DEFAULT 0,
	raw_data           TEXT,
	processed_data     TEXT,
	enriched_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_results_business ON enrichment_results(business_id, enriched_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResults(ctx context.Context, results []model.EnrichmentResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO enrichment_results ("+strings.Join(columns, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range results {
		enc, err := encode(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), r.BusinessID, string(r.Source), string(r.MatchConfidence), r.MatchScore,
			r.DataVersion, r.Checksum, r.DataQualityScore, r.CompletenessScore,
			r.CostUSD, string(enc.raw), string(enc.processed), r.EnrichedAt.UTC().Format(sqliteTime),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert result for %s", r.BusinessID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) LastEnriched(ctx context.Context, businessID string) (time.Time, bool, error) {
	var ts sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(enriched_at) FROM enrichment_results WHERE business_id = ?`, businessID,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: last enriched")
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(sqliteTime, ts.String)
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: parse enriched_at")
	}
	return t, true, nil
}

func (s *SQLiteStore) History(ctx context.Context, businessID string) ([]model.EnrichmentResult, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+strings.Join(columns[1:], ", ")+
			" FROM enrichment_results WHERE business_id = ? ORDER BY enriched_at", businessID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: history")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EnrichmentResult
	for rows.Next() {
		var (
			r              model.EnrichmentResult
			raw, processed sql.NullString
			enrichedAt     string
		)
		if err := rows.Scan(
			&r.BusinessID, &r.Source, &r.MatchConfidence, &r.MatchScore,
			&r.DataVersion, &r.Checksum, &r.DataQualityScore, &r.CompletenessScore,
			&r.CostUSD, &raw, &processed, &enrichedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		if err := decodeInto(&r, []byte(raw.String), []byte(processed.String)); err != nil {
			return nil, err
		}
		if r.EnrichedAt, err = time.Parse(sqliteTime, enrichedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse enriched_at")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate history")
}
