// Package matcher decides whether two business records describe the same
// physical business and classifies how confident that decision is.
package matcher

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/similarity"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = eris.New("matcher: invalid config")

// Thresholds are the lower bounds of each confidence tier. Scores below Low
// are uncertain.
type Thresholds struct {
	Exact  float64 `yaml:"exact" mapstructure:"exact"`
	High   float64 `yaml:"high" mapstructure:"high"`
	Medium float64 `yaml:"medium" mapstructure:"medium"`
	Low    float64 `yaml:"low" mapstructure:"low"`
}

// Config tunes the matcher.
type Config struct {
	Weights              map[similarity.Attribute]float64 `yaml:"weights" mapstructure:"weights"`
	Thresholds           Thresholds                       `yaml:"thresholds" mapstructure:"thresholds"`
	MinNonZeroComponents int                              `yaml:"min_nonzero_components" mapstructure:"min_nonzero_components"`
	RequireName          bool                             `yaml:"require_name" mapstructure:"require_name"`
	NameFloor            float64                          `yaml:"name_floor" mapstructure:"name_floor"`
	RequireLocation      bool                             `yaml:"require_location" mapstructure:"require_location"`
	LocationFloor        float64                          `yaml:"location_floor" mapstructure:"location_floor"`
	PhoneExactBonus      float64                          `yaml:"phone_exact_bonus" mapstructure:"phone_exact_bonus"`
	BusinessTypePenalty  float64                          `yaml:"business_type_penalty" mapstructure:"business_type_penalty"`
	MaxCandidates        int                              `yaml:"max_candidates" mapstructure:"max_candidates"`
	EarlyExitScore       float64                          `yaml:"early_exit_score" mapstructure:"early_exit_score"`
	CacheTTL             time.Duration                    `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheSize            int                              `yaml:"cache_size" mapstructure:"cache_size"`
}

// DefaultThresholds returns the standard tier bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{Exact: 0.95, High: 0.85, Medium: 0.70, Low: 0.50}
}

// DefaultWeights returns the standard attribute weights (summing to 1.0).
func DefaultWeights() map[similarity.Attribute]float64 {
	return map[similarity.Attribute]float64{
		similarity.AttrName:    0.35,
		similarity.AttrPhone:   0.25,
		similarity.AttrAddress: 0.25,
		similarity.AttrZip:     0.10,
		similarity.AttrDomain:  0.05,
	}
}

// DefaultConfig returns the standard matcher configuration.
func DefaultConfig() Config {
	return Config{
		Weights:              DefaultWeights(),
		Thresholds:           DefaultThresholds(),
		MinNonZeroComponents: 2,
		NameFloor:            0.5,
		LocationFloor:        0.5,
		PhoneExactBonus:      0.05,
		BusinessTypePenalty:  0.9,
		MaxCandidates:        1000,
		EarlyExitScore:       0.99,
		CacheTTL:             time.Hour,
		CacheSize:            10000,
	}
}

// Validate rejects configurations that cannot produce meaningful scores.
func (c Config) Validate() error {
	var total float64
	for attr, w := range c.Weights {
		if w < 0 {
			return eris.Wrapf(ErrInvalidConfig, "negative weight for %s", attr)
		}
		if _, ok := similarity.Compare(attr, "", ""); !ok {
			return eris.Wrapf(ErrInvalidConfig, "unknown attribute %q", attr)
		}
		total += w
	}
	if total == 0 {
		return eris.Wrap(ErrInvalidConfig, "weights reference no attribute")
	}
	t := c.Thresholds
	if !(t.Exact > t.High && t.High > t.Medium && t.Medium > t.Low && t.Low > 0 && t.Exact <= 1) {
		return eris.Wrap(ErrInvalidConfig, "thresholds must be strictly descending within (0,1]")
	}
	if c.BusinessTypePenalty < 0 || c.BusinessTypePenalty > 1 {
		return eris.Wrap(ErrInvalidConfig, "business type penalty must be within [0,1]")
	}
	return nil
}

// Classify maps a score onto a confidence tier. Tiers are exhaustive and
// monotonic: a higher score never yields a lower tier.
func (t Thresholds) Classify(score float64) model.Confidence {
	switch {
	case score >= t.Exact:
		return model.ConfidenceExact
	case score >= t.High:
		return model.ConfidenceHigh
	case score >= t.Medium:
		return model.ConfidenceMedium
	case score >= t.Low:
		return model.ConfidenceLow
	default:
		return model.ConfidenceUncertain
	}
}

// Classify maps a score onto a tier using the default thresholds.
func Classify(score float64) model.Confidence {
	return DefaultThresholds().Classify(score)
}
