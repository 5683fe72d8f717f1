package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/cache"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/config"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/enrich"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/matcher"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/metrics"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/resilience"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/similarity"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/store"
	"github.com/mirqtio/LeadFactory-v1-sub002/pkg/places"
)

// enrichEnv holds the initialized store, caches, matcher and coordinator
// used by the enrich and serve commands.
type enrichEnv struct {
	Store       store.Store
	Matcher     *matcher.Matcher
	Coordinator *enrich.Coordinator
	Metrics     *metrics.Metrics
	Registry    *enrich.Registry
	redis       *redis.Client
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

// initEnv wires every component from c. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*enrichEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	env := &enrichEnv{Registry: enrich.NewRegistry()}
	if c.Redis.Addr != "" {
		env.redis = cache.NewRedisClient(cache.RedisConfig{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
		zap.L().Info("shared redis cache enabled", zap.String("addr", c.Redis.Addr))
	}

	mcfg := matcherConfig(c.Match)
	if err := mcfg.Validate(); err != nil {
		env.Close()
		return nil, err
	}
	env.Matcher = newMatcher(mcfg, env.redis, c.Redis.Prefix)

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "open store")
	}
	env.Store = st

	policy, err := loadPolicy(c.Enrich)
	if err != nil {
		env.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env.Metrics = metrics.New(reg)

	retry := resilience.Policy{
		Attempts:  c.Resilience.RetryAttempts,
		BaseDelay: time.Duration(c.Resilience.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:  time.Duration(c.Resilience.RetryMaxDelayMs) * time.Millisecond,
	}
	if c.Places.Key != "" {
		opts := []places.Option{
			places.WithBaseURL(c.Places.BaseURL),
			places.WithRateLimit(c.Places.RateLimit),
		}
		if c.Places.TimeoutSecs > 0 {
			opts = append(opts, places.WithHTTPClient(&http.Client{Timeout: time.Duration(c.Places.TimeoutSecs) * time.Second}))
		}
		client := places.NewClient(c.Places.Key, opts...)
		env.Registry.AddEnricher(model.SourceInternal, enrich.NewInternalEnricher(client, env.Matcher,
			enrich.WithSearchCache(searchCache(env.redis, c.Redis.Prefix, c.Enrich.SearchCacheMins)),
			enrich.WithRetryPolicy(retry),
			enrich.WithCostPerSearch(c.Enrich.DefaultCostPerHit),
			enrich.WithMaxResults(c.Places.MaxResults),
		))
	} else {
		zap.L().Warn("LEADFACTORY_PLACES_KEY not set, internal source disabled")
	}

	env.Coordinator = enrich.NewCoordinator(env.Registry, enrich.Options{
		MaxConcurrent:   c.Enrich.MaxConcurrent,
		FreshnessWindow: time.Duration(c.Enrich.FreshnessDays) * 24 * time.Hour,
		Policy:          policy,
		Breaker: resilience.BreakerConfig{
			Failures: c.Resilience.BreakerFailures,
			Cooldown: time.Duration(c.Resilience.BreakerCooldownSec) * time.Second,
		},
		Store:       st,
		Metrics:     env.Metrics,
		MatchConfig: &mcfg,
	})

	zap.L().Info("enrichment environment ready",
		zap.String("store", c.Store.Driver),
		zap.Int("sources", len(env.Registry.Sources())),
		zap.Int("max_concurrent", c.Enrich.MaxConcurrent),
	)
	return env, nil
}

// matcherConfig maps the flat config section onto matcher settings.
func matcherConfig(mc config.MatchConfig) matcher.Config {
	out := matcher.DefaultConfig()
	if len(mc.Weights) > 0 {
		out.Weights = make(map[similarity.Attribute]float64, len(mc.Weights))
		for k, w := range mc.Weights {
			out.Weights[similarity.Attribute(k)] = w
		}
	}
	if mc.Thresholds != (config.ThresholdConfig{}) {
		out.Thresholds = matcher.Thresholds(mc.Thresholds)
	}
	if mc.MinNonZeroComponents > 0 {
		out.MinNonZeroComponents = mc.MinNonZeroComponents
	}
	out.RequireName = mc.RequireName
	out.RequireLocation = mc.RequireLocation
	if mc.PhoneExactBonus > 0 {
		out.PhoneExactBonus = mc.PhoneExactBonus
	}
	if mc.BusinessTypePenalty > 0 {
		out.BusinessTypePenalty = mc.BusinessTypePenalty
	}
	if mc.MaxCandidates > 0 {
		out.MaxCandidates = mc.MaxCandidates
	}
	if mc.CacheTTLMins > 0 {
		out.CacheTTL = time.Duration(mc.CacheTTLMins) * time.Minute
	}
	return out
}

func newMatcher(mc matcher.Config, rc *redis.Client, prefix string) *matcher.Matcher {
	if rc == nil {
		return matcher.New(mc)
	}
	return matcher.New(mc, matcher.WithCache(cache.NewRedis[matcher.Result](rc, prefix+":match", mc.CacheTTL)))
}

func searchCache(rc *redis.Client, prefix string, mins int) cache.Cache[[]places.Place] {
	if mins <= 0 {
		return nil
	}
	ttl := time.Duration(mins) * time.Minute
	if rc == nil {
		return cache.NewMemory[[]places.Place](ttl, 10000)
	}
	return cache.NewRedis[[]places.Place](rc, prefix+":places", ttl)
}

// loadPolicy reads the policy file, or derives a policy from config.
func loadPolicy(ec config.EnrichConfig) (*enrich.Policy, error) {
	if ec.PolicyFile != "" {
		p, err := enrich.LoadPolicy(ec.PolicyFile)
		if err != nil {
			return nil, err
		}
		zap.L().Info("source policy loaded", zap.String("path", ec.PolicyFile), zap.Int("sources", len(p.Sources)))
		return p, nil
	}
	p := &enrich.Policy{
		Defaults: enrich.PolicyDefaults{FreshnessDays: ec.FreshnessDays},
		Sources:  map[model.Source]enrich.SourcePolicy{},
	}
	for _, s := range ec.Sources {
		p.Defaults.Order = append(p.Defaults.Order, model.Source(strings.TrimSpace(s)))
	}
	return p, nil
}

// readBusinesses decodes a JSON array of businesses, or a single object,
// from path. "-" reads stdin.
func readBusinesses(path string) ([]model.Business, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return decodeBusinesses(data)
}

func decodeBusinesses(data []byte) ([]model.Business, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var one model.Business
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, eris.Wrap(err, "decode business")
		}
		return []model.Business{one}, nil
	}
	var many []model.Business
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, eris.Wrap(err, "decode businesses")
	}
	return many, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
