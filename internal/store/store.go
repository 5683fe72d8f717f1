// Package store persists enrichment results so later batches can skip
// recently enriched businesses and layer new data over old.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/db"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

// Store is the enrichment history backend.
type Store interface {
	SaveResults(ctx context.Context, results []model.EnrichmentResult) error
	// LastEnriched returns when the business was last enriched by any source.
	LastEnriched(ctx context.Context, businessID string) (time.Time, bool, error)
	// History returns every stored result for the business, oldest first.
	History(ctx context.Context, businessID string) ([]model.EnrichmentResult, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and migrates it. An empty driver
// returns a nil Store, which callers treat as persistence disabled.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "":
		return nil, nil
	case "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres":
		var pool db.Pool
		pool, err = db.Connect(ctx, dsn, db.PoolConfig{})
		if err == nil {
			s = NewPostgres(pool)
		}
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

var columns = []string{
	"id", "business_id", "source", "match_confidence", "match_score",
	"data_version", "checksum", "data_quality_score", "completeness_score",
	"cost_usd", "raw_data", "processed_data", "enriched_at",
}

type encoded struct {
	raw       []byte
	processed []byte
}

func encode(r model.EnrichmentResult) (encoded, error) {
	raw, err := json.Marshal(r.RawData)
	if err != nil {
		return encoded{}, eris.Wrapf(err, "store: marshal raw data for %s", r.BusinessID)
	}
	processed, err := json.Marshal(r.ProcessedData)
	if err != nil {
		return encoded{}, eris.Wrapf(err, "store: marshal processed data for %s", r.BusinessID)
	}
	return encoded{raw: raw, processed: processed}, nil
}

func decodeInto(r *model.EnrichmentResult, raw, processed []byte) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.RawData); err != nil {
			return eris.Wrap(err, "store: unmarshal raw data")
		}
	}
	if len(processed) > 0 {
		if err := json.Unmarshal(processed, &r.ProcessedData); err != nil {
			return eris.Wrap(err, "store: unmarshal processed data")
		}
	}
	return nil
}
