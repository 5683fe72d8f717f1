package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/cache"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/matcher"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/resilience"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/similarity"
	"github.com/mirqtio/LeadFactory-v1-sub002/pkg/places"
)

// internalDataVersion tags results produced by InternalEnricher.
const internalDataVersion = "places-v1"

// Blend weights for ranking search candidates. They sum to 1.
var internalWeights = map[string]float64{
	"match":       0.40,
	"relevance":   0.15,
	"name":        0.15,
	"operational": 0.10,
	"reviews":     0.08,
	"rating":      0.06,
	"website":     0.06,
}

// InternalOption configures an InternalEnricher.
type InternalOption func(*InternalEnricher)

// WithSearchCache caches search responses. Entries are keyed per business and
// hour, so a cache hit costs nothing.
func WithSearchCache(c cache.Cache[[]places.Place]) InternalOption {
	return func(e *InternalEnricher) { e.cache = c }
}

// WithRetryPolicy overrides the retry policy for search calls.
func WithRetryPolicy(p resilience.Policy) InternalOption {
	return func(e *InternalEnricher) { e.retry = p }
}

// WithCostPerSearch sets the cost reported for an uncached search.
func WithCostPerSearch(usd float64) InternalOption {
	return func(e *InternalEnricher) { e.costPerSearch = usd }
}

// WithMaxResults bounds the candidates requested per search.
func WithMaxResults(n int) InternalOption {
	return func(e *InternalEnricher) { e.maxResults = n }
}

// WithInternalClock injects the time source.
func WithInternalClock(now func() time.Time) InternalOption {
	return func(e *InternalEnricher) { e.now = now }
}

// InternalEnricher is the built-in source: it searches the places API for
// the business and keeps the best-scoring candidate.
type InternalEnricher struct {
	client        places.Client
	matcher       *matcher.Matcher
	cache         cache.Cache[[]places.Place]
	retry         resilience.Policy
	costPerSearch float64
	maxResults    int
	now           func() time.Time
}

// NewInternalEnricher wires the places client to m.
func NewInternalEnricher(client places.Client, m *matcher.Matcher, opts ...InternalOption) *InternalEnricher {
	e := &InternalEnricher{
		client:     client,
		matcher:    m,
		retry:      resilience.DefaultPolicy(),
		maxResults: 5,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.retry.OnRetry == nil {
		e.retry.OnRetry = resilience.LogRetries(string(model.SourceInternal), "search")
	}
	return e
}

// Enrich implements Enricher.
func (e *InternalEnricher) Enrich(ctx context.Context, b model.Business) (*model.EnrichmentResult, error) {
	query := b.SearchQuery()
	if strings.TrimSpace(b.Name) == "" || query == "" {
		return nil, nil
	}

	now := e.now()
	candidates, cached, err := e.search(ctx, b, query, now)
	if err != nil {
		return nil, err
	}

	best, scores, ok := e.pick(b, candidates)
	if !ok {
		zap.L().Debug("enrich: no internal match",
			zap.String("business_id", b.ID),
			zap.Int("candidates", len(candidates)),
		)
		return nil, nil
	}

	cost := e.costPerSearch
	if cached {
		cost = 0
	}
	return e.build(b, best, scores, cost, now)
}

func (e *InternalEnricher) search(ctx context.Context, b model.Business, query string, now time.Time) ([]places.Place, bool, error) {
	key := GenerateCacheKey(matcher.RecordID(b), model.SourceInternal, now)
	if e.cache != nil {
		if hit, ok := e.cache.Get(key); ok {
			return hit, true, nil
		}
	}

	resp, err := resilience.Retry(ctx, e.retry, func(ctx context.Context) (*places.SearchResponse, error) {
		r, err := e.client.SearchText(ctx, places.SearchRequest{TextQuery: query, MaxResultCount: e.maxResults})
		if err != nil {
			return nil, classifyPlacesError(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, false, eris.Wrapf(err, "enrich: internal search for %s", b.ID)
	}

	if e.cache != nil {
		e.cache.Set(key, resp.Places)
	}
	return resp.Places, false, nil
}

// classifyPlacesError maps client failures onto the retry classification.
func classifyPlacesError(err error) error {
	var se *places.StatusError
	if errors.As(err, &se) {
		return &resilience.ProviderError{Provider: string(model.SourceInternal), StatusCode: se.StatusCode, Err: err}
	}
	return &resilience.ProviderError{Provider: string(model.SourceInternal), Err: err}
}

type candidateScores struct {
	blended  float64
	match    matcher.Result
	name     float64
	position int
}

// pick scores every candidate and returns the best one whose blended score
// reaches the low tier.
func (e *InternalEnricher) pick(b model.Business, candidates []places.Place) (places.Place, candidateScores, bool) {
	var (
		best      places.Place
		bestScore candidateScores
		found     bool
	)
	thresholds := e.matcher.Config().Thresholds
	for i, p := range candidates {
		rec := placeToBusiness(p)
		res := e.matcher.MatchRecords(b, rec)
		name := similarity.Name(b.Name, rec.Name).Score

		blended := internalWeights["match"]*res.OverallScore +
			internalWeights["relevance"]*(1/float64(1+i)) +
			internalWeights["name"]*name +
			internalWeights["operational"]*boolScore(p.Operational()) +
			internalWeights["reviews"]*math.Min(float64(p.UserRatingCount)/100, 1) +
			internalWeights["rating"]*math.Min(p.Rating/5, 1) +
			internalWeights["website"]*boolScore(p.WebsiteURI != "")
		blended = math.Max(0, math.Min(1, blended))

		if blended < thresholds.Low || res.OverallScore < thresholds.Low {
			continue
		}
		if !found || blended > bestScore.blended {
			best = p
			bestScore = candidateScores{blended: blended, match: res, name: name, position: i}
			found = true
		}
	}
	return best, bestScore, found
}

func (e *InternalEnricher) build(b model.Business, p places.Place, s candidateScores, cost float64, now time.Time) (*model.EnrichmentResult, error) {
	raw, err := placeToMap(p)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: encode place")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: checksum place")
	}
	sum := sha256.Sum256(payload)

	processed := map[string]any{
		"name":            p.DisplayName.Text,
		"address":         p.FormattedAddress,
		"phone":           p.Phone(),
		"website":         p.WebsiteURI,
		"business_status": p.BusinessStatus,
		"rating":          p.Rating,
		"review_count":    p.UserRatingCount,
		"types":           p.Types,
		"place_id":        p.ID,
		"search_rank":     s.position + 1,
	}
	if p.PrimaryType != "" {
		processed["primary_type"] = p.PrimaryType
	}
	if p.Location != nil {
		processed["latitude"] = p.Location.Latitude
		processed["longitude"] = p.Location.Longitude
	}

	return &model.EnrichmentResult{
		BusinessID:        b.ID,
		Source:            model.SourceInternal,
		MatchConfidence:   e.matcher.Config().Thresholds.Classify(s.blended),
		MatchScore:        s.blended,
		DataVersion:       internalDataVersion,
		Checksum:          hex.EncodeToString(sum[:]),
		DataQualityScore:  qualityScore(p, s),
		CompletenessScore: completeness(p),
		CostUSD:           cost,
		RawData:           raw,
		ProcessedData:     processed,
		EnrichedAt:        now,
	}, nil
}

func placeToBusiness(p places.Place) model.Business {
	return model.Business{
		ID:           p.ID,
		Name:         p.DisplayName.Text,
		Phone:        p.Phone(),
		Address:      p.FormattedAddress,
		Website:      p.WebsiteURI,
		BusinessType: p.PrimaryType,
	}
}

func placeToMap(p places.Place) (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// completeness is the share of profile fields the place populates.
func completeness(p places.Place) float64 {
	present := []bool{
		p.DisplayName.Text != "",
		p.FormattedAddress != "",
		p.Phone() != "",
		p.WebsiteURI != "",
		p.BusinessStatus != "",
		p.UserRatingCount > 0,
		len(p.Types) > 0,
		p.Location != nil,
	}
	n := 0
	for _, ok := range present {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(present))
}

// qualityScore favours strong identity evidence over popularity.
func qualityScore(p places.Place, s candidateScores) float64 {
	q := 0.5*s.match.OverallScore + 0.3*s.name + 0.2*completeness(p)
	return math.Round(q*1000) / 1000
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
