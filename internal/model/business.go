// Package model holds the business, enrichment and progress types shared by
// the matcher, the coordinator and the store.
package model

import (
	"strings"
	"time"
)

// Business is a partial business record as supplied by a caller or returned
// by a provider search. Every field is optional; absent fields degrade match
// scores rather than causing errors.
type Business struct {
	ID             string     `json:"id,omitempty"`
	Name           string     `json:"name,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Address        string     `json:"address,omitempty"`
	City           string     `json:"city,omitempty"`
	State          string     `json:"state,omitempty"`
	Zip            string     `json:"zip,omitempty"`
	Website        string     `json:"website,omitempty"`
	BusinessType   string     `json:"business_type,omitempty"`
	LastEnrichedAt *time.Time `json:"last_enriched_at,omitempty"`
}

// FullAddress joins street, city, state and zip into one line in the
// "street, city, ST 12345" shape the address parser expects. Components
// already present in Address are not repeated.
func (b Business) FullAddress() string {
	street := strings.TrimSpace(b.Address)
	lower := strings.ToLower(street)

	parts := make([]string, 0, 3)
	if street != "" {
		parts = append(parts, street)
	}
	if city := strings.TrimSpace(b.City); city != "" && !strings.Contains(lower, strings.ToLower(city)) {
		parts = append(parts, city)
	}
	var tail []string
	if st := strings.TrimSpace(b.State); st != "" && !strings.Contains(lower, ", "+strings.ToLower(st)) {
		tail = append(tail, st)
	}
	if zip := strings.TrimSpace(b.Zip); zip != "" && !strings.Contains(lower, zip) {
		tail = append(tail, zip)
	}
	if len(tail) > 0 {
		parts = append(parts, strings.Join(tail, " "))
	}
	return strings.Join(parts, ", ")
}

// SearchQuery builds a provider text-search query from the name and location.
func (b Business) SearchQuery() string {
	parts := []string{strings.TrimSpace(b.Name)}
	if loc := b.FullAddress(); loc != "" {
		parts = append(parts, loc)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// HasLocation reports whether any address component is populated.
func (b Business) HasLocation() bool {
	return strings.TrimSpace(b.Address+b.City+b.State+b.Zip) != ""
}

// EnrichedWithin reports whether LastEnrichedAt falls inside window before now.
func (b Business) EnrichedWithin(window time.Duration, now time.Time) bool {
	if b.LastEnrichedAt == nil || b.LastEnrichedAt.IsZero() {
		return false
	}
	return now.Sub(*b.LastEnrichedAt) < window
}
