// Package config loads runtime settings from file, environment and flags.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the enrichment history backend. An empty driver
// disables persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedisConfig configures the shared cache. An empty address keeps caches
// in process.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// PlacesConfig holds Places API settings for the internal source.
type PlacesConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
}

// MatchConfig tunes the business matcher.
type MatchConfig struct {
	Weights              map[string]float64 `yaml:"weights" mapstructure:"weights"`
	Thresholds           ThresholdConfig    `yaml:"thresholds" mapstructure:"thresholds"`
	MinNonZeroComponents int                `yaml:"min_nonzero_components" mapstructure:"min_nonzero_components"`
	RequireName          bool               `yaml:"require_name" mapstructure:"require_name"`
	RequireLocation      bool               `yaml:"require_location" mapstructure:"require_location"`
	PhoneExactBonus      float64            `yaml:"phone_exact_bonus" mapstructure:"phone_exact_bonus"`
	BusinessTypePenalty  float64            `yaml:"business_type_penalty" mapstructure:"business_type_penalty"`
	MaxCandidates        int                `yaml:"max_candidates" mapstructure:"max_candidates"`
	CacheTTLMins         int                `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// ThresholdConfig holds the lower bound of each confidence tier.
type ThresholdConfig struct {
	Exact  float64 `yaml:"exact" mapstructure:"exact"`
	High   float64 `yaml:"high" mapstructure:"high"`
	Medium float64 `yaml:"medium" mapstructure:"medium"`
	Low    float64 `yaml:"low" mapstructure:"low"`
}

// EnrichConfig configures batch enrichment.
type EnrichConfig struct {
	Sources           []string `yaml:"sources" mapstructure:"sources"`
	PolicyFile        string   `yaml:"policy_file" mapstructure:"policy_file"`
	MaxConcurrent     int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	FreshnessDays     int      `yaml:"freshness_days" mapstructure:"freshness_days"`
	TimeoutSecs       int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SearchCacheMins   int      `yaml:"search_cache_mins" mapstructure:"search_cache_mins"`
	RetentionHours    int      `yaml:"retention_hours" mapstructure:"retention_hours"`
	CleanupEveryMins  int      `yaml:"cleanup_every_mins" mapstructure:"cleanup_every_mins"`
	SkipExisting      bool     `yaml:"skip_existing" mapstructure:"skip_existing"`
	DefaultCostPerHit float64  `yaml:"default_cost_per_hit" mapstructure:"default_cost_per_hit"`
}

// ResilienceConfig configures retries and circuit breakers for sources.
type ResilienceConfig struct {
	RetryAttempts      int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBaseDelayMs   int `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs    int `yaml:"retry_max_delay_ms" mapstructure:"retry_max_delay_ms"`
	BreakerFailures    int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldownSec int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADFACTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadfactory.db")
	v.SetDefault("redis.prefix", "leadfactory")
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.rate_limit", 10.0)
	v.SetDefault("places.timeout_secs", 10)
	v.SetDefault("places.max_results", 5)
	v.SetDefault("match.weights", map[string]float64{
		"business_name": 0.35,
		"phone":         0.25,
		"address":       0.25,
		"zip":           0.10,
		"domain":        0.05,
	})
	v.SetDefault("match.thresholds.exact", 0.95)
	v.SetDefault("match.thresholds.high", 0.85)
	v.SetDefault("match.thresholds.medium", 0.70)
	v.SetDefault("match.thresholds.low", 0.50)
	v.SetDefault("match.min_nonzero_components", 2)
	v.SetDefault("match.phone_exact_bonus", 0.05)
	v.SetDefault("match.business_type_penalty", 0.9)
	v.SetDefault("match.max_candidates", 1000)
	v.SetDefault("match.cache_ttl_mins", 60)
	v.SetDefault("enrich.sources", []string{"internal"})
	v.SetDefault("enrich.max_concurrent", 5)
	v.SetDefault("enrich.freshness_days", 30)
	v.SetDefault("enrich.timeout_secs", 300)
	v.SetDefault("enrich.search_cache_mins", 60)
	v.SetDefault("enrich.retention_hours", 24)
	v.SetDefault("enrich.cleanup_every_mins", 15)
	v.SetDefault("enrich.skip_existing", true)
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.retry_base_delay_ms", 250)
	v.SetDefault("resilience.retry_max_delay_ms", 10000)
	v.SetDefault("resilience.breaker_failures", 5)
	v.SetDefault("resilience.breaker_cooldown_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings a command mode depends on. Mode is one of
// "enrich", "match" or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "match":
	case "enrich", "serve":
		if c.Enrich.MaxConcurrent < 1 || c.Enrich.MaxConcurrent > 100 {
			problems = append(problems, "enrich.max_concurrent must be between 1 and 100")
		}
		if len(c.Enrich.Sources) == 0 {
			problems = append(problems, "enrich.sources must name at least one source")
		}
		switch c.Store.Driver {
		case "", "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite, postgres or empty")
		}
		if c.Store.Driver != "" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required when store.driver is set")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	for name, w := range c.Match.Weights {
		if w < 0 {
			problems = append(problems, "match.weights."+name+" must be >= 0")
		}
	}
	t := c.Match.Thresholds
	if !(t.Exact > t.High && t.High > t.Medium && t.Medium > t.Low && t.Low > 0 && t.Exact <= 1) {
		problems = append(problems, "match.thresholds must descend exact > high > medium > low > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
