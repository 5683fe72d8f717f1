// Package similarity computes normalized [0,1] similarity scores for the
// attributes used to decide whether two business records describe the same
// physical business.
package similarity

// Algorithm tags identify which comparison produced a Result.
const (
	AlgoPhone    = "phone_digits"
	AlgoName     = "name_jaccard"
	AlgoNameEdit = "name_levenshtein"
	AlgoAddress  = "address_components"
	AlgoZip      = "zip_prefix"
	AlgoDomain   = "domain_exact"
	AlgoWeighted = "weighted_combination"
)

// Result is the outcome of comparing one attribute pair. Normalized forms of
// both inputs are always populated so callers can audit a decision.
type Result struct {
	Score       float64        `json:"score"`
	Algorithm   string         `json:"algorithm"`
	Normalized1 string         `json:"normalized_1"`
	Normalized2 string         `json:"normalized_2"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
