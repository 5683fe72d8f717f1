package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

// MergeEnrichmentData layers incoming over existing. For every (field,
// provider) pair only the most recently collected value survives, so a stale
// call from one provider never replaces a fresher value from the same
// provider and never touches other providers' values. Neither input is
// modified.
func MergeEnrichmentData(existing, incoming model.EnrichmentData) model.EnrichmentData {
	out := make(model.EnrichmentData, len(existing)+len(incoming))
	for _, src := range []model.EnrichmentData{existing, incoming} {
		for field, values := range src {
			for _, v := range values {
				out[field] = upsertStamped(out[field], v)
			}
		}
	}
	for field := range out {
		sort.Slice(out[field], func(i, j int) bool {
			return out[field][i].Provider < out[field][j].Provider
		})
	}
	return out
}

func upsertStamped(entries []model.StampedValue, v model.StampedValue) []model.StampedValue {
	for i, e := range entries {
		if e.Provider != v.Provider {
			continue
		}
		if v.CollectedAt.After(e.CollectedAt) {
			entries[i] = v
		}
		return entries
	}
	return append(entries, v)
}

// FromLegacy converts a flat field map into stamped data. Values already in
// stamped form ({"value", "provider", "collected_at"}) keep their stamp;
// anything else is attributed to the internal source at now.
func FromLegacy(raw map[string]any, now time.Time) model.EnrichmentData {
	out := make(model.EnrichmentData, len(raw))
	for field, v := range raw {
		sv, ok := asStamped(v)
		if !ok {
			sv = model.StampedValue{Value: v, Provider: string(model.SourceInternal), CollectedAt: now}
		}
		out[field] = upsertStamped(out[field], sv)
	}
	return out
}

func asStamped(v any) (model.StampedValue, bool) {
	switch t := v.(type) {
	case model.StampedValue:
		return t, true
	case map[string]any:
		val, hasVal := t["value"]
		provider, _ := t["provider"].(string)
		if !hasVal || provider == "" {
			return model.StampedValue{}, false
		}
		var at time.Time
		switch ts := t["collected_at"].(type) {
		case time.Time:
			at = ts
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return model.StampedValue{}, false
			}
			at = parsed
		default:
			return model.StampedValue{}, false
		}
		return model.StampedValue{Value: val, Provider: provider, CollectedAt: at}, true
	}
	return model.StampedValue{}, false
}

// FromResult stamps a result's processed fields with its source and time.
func FromResult(r model.EnrichmentResult) model.EnrichmentData {
	out := make(model.EnrichmentData, len(r.ProcessedData))
	for field, v := range r.ProcessedData {
		out[field] = []model.StampedValue{{Value: v, Provider: string(r.Source), CollectedAt: r.EnrichedAt}}
	}
	return out
}

// GenerateCacheKey builds a provider cache key for a business. The id is
// hashed and the time is bucketed to the hour, so entries roll over without
// explicit invalidation. A zero ts means now.
func GenerateCacheKey(businessID string, provider model.Source, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	sum := sha256.Sum256([]byte(businessID))
	return "enrich:" + string(provider) + ":" + hex.EncodeToString(sum[:8]) + ":" + ts.UTC().Format("2006010215")
}
