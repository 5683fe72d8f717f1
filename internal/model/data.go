package model

import (
	"sort"
	"time"
)

// StampedValue is one provider's value for a field at a point in time.
type StampedValue struct {
	Value       any       `json:"value"`
	Provider    string    `json:"provider"`
	CollectedAt time.Time `json:"collected_at"`
}

// EnrichmentData is the accumulated enrichment history of one business,
// keyed by field. Each field holds at most one entry per provider.
type EnrichmentData map[string][]StampedValue

// Latest returns the most recently collected value of a field across providers.
func (d EnrichmentData) Latest(field string) (StampedValue, bool) {
	entries := d[field]
	if len(entries) == 0 {
		return StampedValue{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.CollectedAt.After(best.CollectedAt) {
			best = e
		}
	}
	return best, true
}

// FromProvider returns a field's value as reported by one provider.
func (d EnrichmentData) FromProvider(field, provider string) (StampedValue, bool) {
	for _, e := range d[field] {
		if e.Provider == provider {
			return e, true
		}
	}
	return StampedValue{}, false
}

// Flatten collapses the history into field → latest value.
func (d EnrichmentData) Flatten() map[string]any {
	out := make(map[string]any, len(d))
	for field := range d {
		if v, ok := d.Latest(field); ok {
			out[field] = v.Value
		}
	}
	return out
}

// Fields returns the field names in sorted order.
func (d EnrichmentData) Fields() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
