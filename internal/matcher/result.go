package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/similarity"
)

// Result is the outcome of comparing two business records. Confidence is
// always the tier of OverallScore.
type Result struct {
	MatchID           string                                     `json:"match_id"`
	ID1               string                                     `json:"id_1"`
	ID2               string                                     `json:"id_2"`
	OverallScore      float64                                    `json:"overall_score"`
	Confidence        model.Confidence                           `json:"confidence"`
	MatchType         model.MatchType                            `json:"match_type"`
	ComponentScores   map[similarity.Attribute]float64           `json:"component_scores"`
	SimilarityDetails map[similarity.Attribute]similarity.Result `json:"similarity_details"`
	Metadata          map[string]any                             `json:"metadata,omitempty"`
	CreatedAt         time.Time                                  `json:"created_at"`
}

// IsMatch reports whether the result is above the uncertain tier.
func (r Result) IsMatch() bool {
	return r.Confidence.Usable()
}

// Component returns the score of one attribute, or 0 when it was not compared.
func (r Result) Component(attr similarity.Attribute) float64 {
	return r.ComponentScores[attr]
}

// Attributes projects a business record onto the comparable attributes.
func Attributes(b model.Business) similarity.Attributes {
	return similarity.Attributes{
		similarity.AttrName:    b.Name,
		similarity.AttrPhone:   b.Phone,
		similarity.AttrAddress: b.FullAddress(),
		similarity.AttrZip:     zipOf(b),
		similarity.AttrDomain:  b.Website,
	}
}

// zipOf prefers the explicit zip and falls back to one embedded in Address.
func zipOf(b model.Business) string {
	if z := strings.TrimSpace(b.Zip); z != "" {
		return z
	}
	return similarity.ParseAddress(b.Address).Zip
}

// RecordID derives a stable identifier from a record's normalized content so
// repeated comparisons of id-less records hit the cache.
func RecordID(b model.Business) string {
	if b.ID != "" {
		return b.ID
	}
	parts := []string{
		similarity.NormalizeName(b.Name),
		similarity.NormalizePhone(b.Phone),
		similarity.ParseAddress(b.FullAddress()).String(),
		similarity.NormalizeZip(zipOf(b)),
		similarity.NormalizeDomain(b.Website),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "rec_" + hex.EncodeToString(sum[:8])
}
