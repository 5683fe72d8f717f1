package model

import "time"

// Confidence is a five-tier classification of a match score.
type Confidence string

const (
	ConfidenceExact     Confidence = "exact"
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceLow       Confidence = "low"
	ConfidenceUncertain Confidence = "uncertain"
)

var confidenceRank = map[Confidence]int{
	ConfidenceUncertain: 0,
	ConfidenceLow:       1,
	ConfidenceMedium:    2,
	ConfidenceHigh:      3,
	ConfidenceExact:     4,
}

// Rank orders tiers from uncertain (0) to exact (4). Unknown values rank as uncertain.
func (c Confidence) Rank() int {
	return confidenceRank[c]
}

// AtLeast reports whether c is the same tier as min or better.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.Rank() >= min.Rank()
}

// Usable reports whether the tier is above uncertain.
func (c Confidence) Usable() bool {
	return c.Rank() > 0
}

// MatchType describes how two records matched, independent of the tier.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchFuzzy     MatchType = "fuzzy"
	MatchPartial   MatchType = "partial"
	MatchPotential MatchType = "potential"
	MatchNone      MatchType = "no_match"
)

// Source identifies a pluggable enrichment provider adapter.
type Source string

// SourceInternal is the built-in places-search adapter.
const SourceInternal Source = "internal"

// Priority is the caller's urgency hint for a batch.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// EnrichmentResult is the outcome of one successful (business, source) attempt.
type EnrichmentResult struct {
	BusinessID        string         `json:"business_id"`
	Source            Source         `json:"source"`
	MatchConfidence   Confidence     `json:"match_confidence"`
	MatchScore        float64        `json:"match_score"`
	DataVersion       string         `json:"data_version"`
	Checksum          string         `json:"checksum"`
	DataQualityScore  float64        `json:"data_quality_score"`
	CompletenessScore float64        `json:"completeness_score"`
	CostUSD           float64        `json:"cost_usd"`
	RawData           map[string]any `json:"raw_data,omitempty"`
	ProcessedData     map[string]any `json:"processed_data,omitempty"`
	EnrichedAt        time.Time      `json:"enriched_at"`
}
