package matcher

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/cache"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/similarity"
)

// strongComponent is the component score counted toward match-type strength.
const strongComponent = 0.8

// invalidScoreCap is the highest score a record failing validation may keep.
const invalidScoreCap = 0.49

// Matcher compares business records. It performs no I/O and is safe for
// concurrent use when its cache is.
type Matcher struct {
	cfg   Config
	cache cache.Cache[Result]
	now   func() time.Time
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithCache replaces the default in-memory result cache. Passing nil
// disables caching.
func WithCache(c cache.Cache[Result]) Option {
	return func(m *Matcher) { m.cache = c }
}

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// New creates a Matcher. Zero-valued config sections fall back to defaults.
func New(cfg Config, opts ...Option) *Matcher {
	def := DefaultConfig()
	if len(cfg.Weights) == 0 {
		cfg.Weights = def.Weights
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.EarlyExitScore <= 0 {
		cfg.EarlyExitScore = def.EarlyExitScore
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	m := &Matcher{
		cfg:   cfg,
		cache: cache.NewMemory[Result](cfg.CacheTTL, cfg.CacheSize),
		now:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Matcher) Config() Config {
	return m.cfg
}

// MatchRecords compares two records. Records without an ID get a stable
// content-derived one; results are cached by the (id1, id2) pair.
func (m *Matcher) MatchRecords(r1, r2 model.Business) Result {
	id1, id2 := RecordID(r1), RecordID(r2)
	key := id1 + "|" + id2

	if m.cache != nil {
		if hit, ok := m.cache.Get(key); ok {
			return hit
		}
	}

	res := m.evaluate(Attributes(r1), Attributes(r2), r1.BusinessType, r2.BusinessType, m.cfg)
	res.ID1, res.ID2 = id1, id2

	if m.cache != nil {
		m.cache.Set(key, res)
	}
	return res
}

// FindBestMatches scores candidates against target and returns those at or
// above minScore, best first. Scanning stops early once a near-perfect match
// is found. maxResults <= 0 returns every qualifying match.
func (m *Matcher) FindBestMatches(target model.Business, candidates []model.Business, minScore float64, maxResults int) []Result {
	if len(candidates) > m.cfg.MaxCandidates {
		candidates = candidates[:m.cfg.MaxCandidates]
	}

	var matches []Result
	for _, c := range candidates {
		r := m.MatchRecords(target, c)
		if r.OverallScore < minScore {
			continue
		}
		matches = append(matches, r)
		if r.OverallScore >= m.cfg.EarlyExitScore {
			break
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].OverallScore > matches[j].OverallScore
	})
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// narrowConfig restricts scoring to attrs and relaxes the validity policy to
// what a single-attribute comparison can satisfy.
func (m *Matcher) narrowConfig(attrs ...similarity.Attribute) Config {
	cfg := m.cfg
	cfg.Weights = make(map[similarity.Attribute]float64, len(attrs))
	def := DefaultWeights()
	for _, a := range attrs {
		w := m.cfg.Weights[a]
		if w <= 0 {
			w = def[a]
		}
		cfg.Weights[a] = w
	}
	cfg.MinNonZeroComponents = 1
	cfg.RequireName = false
	cfg.RequireLocation = false
	return cfg
}

// MatchPhoneNumbers compares two phone numbers with full match semantics.
func (m *Matcher) MatchPhoneNumbers(phone1, phone2 string) Result {
	return m.evaluate(
		similarity.Attributes{similarity.AttrPhone: phone1},
		similarity.Attributes{similarity.AttrPhone: phone2},
		"", "", m.narrowConfig(similarity.AttrPhone),
	)
}

// MatchNamesAndZips compares name and zip pairs with full match semantics.
func (m *Matcher) MatchNamesAndZips(name1, zip1, name2, zip2 string) Result {
	return m.evaluate(
		similarity.Attributes{similarity.AttrName: name1, similarity.AttrZip: zip1},
		similarity.Attributes{similarity.AttrName: name2, similarity.AttrZip: zip2},
		"", "", m.narrowConfig(similarity.AttrName, similarity.AttrZip),
	)
}

// MatchAddresses compares two free-form addresses with full match semantics.
func (m *Matcher) MatchAddresses(addr1, addr2 string) Result {
	return m.evaluate(
		similarity.Attributes{similarity.AttrAddress: addr1},
		similarity.Attributes{similarity.AttrAddress: addr2},
		"", "", m.narrowConfig(similarity.AttrAddress),
	)
}

func (m *Matcher) evaluate(a1, a2 similarity.Attributes, type1, type2 string, cfg Config) Result {
	combined := similarity.Combine(a1, a2, cfg.Weights)
	score := combined.Score
	adjustments := map[string]float64{}

	if p, ok := combined.Components[similarity.AttrPhone]; ok && p.Score == 1.0 && cfg.PhoneExactBonus > 0 {
		score += cfg.PhoneExactBonus
		adjustments["phone_exact_bonus"] = cfg.PhoneExactBonus
	}
	if typesDisagree(type1, type2) && cfg.BusinessTypePenalty > 0 {
		score *= cfg.BusinessTypePenalty
		adjustments["business_type_penalty"] = cfg.BusinessTypePenalty
	}
	score = math.Max(0, math.Min(1, score))

	components := make(map[similarity.Attribute]float64, len(combined.Components))
	snippets := make(map[string][2]string, len(combined.Components))
	var nonZero, strong int
	for attr, r := range combined.Components {
		components[attr] = r.Score
		snippets[string(attr)] = [2]string{r.Normalized1, r.Normalized2}
		if r.Score > 0 {
			nonZero++
		}
		if r.Score >= strongComponent {
			strong++
		}
	}

	var failures []string
	if nonZero < cfg.MinNonZeroComponents {
		failures = append(failures, "insufficient_components")
	}
	if cfg.RequireName && components[similarity.AttrName] < cfg.NameFloor {
		failures = append(failures, "name_below_floor")
	}
	if cfg.RequireLocation && math.Max(components[similarity.AttrAddress], components[similarity.AttrZip]) < cfg.LocationFloor {
		failures = append(failures, "location_below_floor")
	}
	if len(failures) > 0 {
		limit := invalidScoreCap
		if limit >= cfg.Thresholds.Low {
			limit = math.Nextafter(cfg.Thresholds.Low, 0)
		}
		score = math.Min(score, limit)
	}

	return Result{
		MatchID:           uuid.NewString(),
		OverallScore:      score,
		Confidence:        cfg.Thresholds.Classify(score),
		MatchType:         classifyMatchType(score, strong, cfg.Thresholds),
		ComponentScores:   components,
		SimilarityDetails: combined.Components,
		Metadata: map[string]any{
			"weights_used":        combined.Weights,
			"total_weight":        combined.TotalWeight,
			"raw_score":           combined.Score,
			"adjustments":         adjustments,
			"nonzero_components":  nonZero,
			"strong_components":   strong,
			"validation_failures": failures,
			"snippets":            snippets,
		},
		CreatedAt: m.now(),
	}
}

func classifyMatchType(score float64, strong int, t Thresholds) model.MatchType {
	switch {
	case score >= t.Exact:
		return model.MatchExact
	case score >= t.Medium && strong >= 2:
		return model.MatchFuzzy
	case score >= t.Medium || (score >= t.Low && strong >= 1):
		return model.MatchPartial
	case score >= t.Low:
		return model.MatchPotential
	default:
		return model.MatchNone
	}
}

func typesDisagree(t1, t2 string) bool {
	t1 = strings.ToLower(strings.TrimSpace(t1))
	t2 = strings.ToLower(strings.TrimSpace(t2))
	return t1 != "" && t2 != "" && t1 != t2
}
