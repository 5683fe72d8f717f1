package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how a provider call is retried.
type Policy struct {
	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int `yaml:"attempts" mapstructure:"attempts"`

	// BaseDelay is the wait before the first retry. Default: 250ms.
	BaseDelay time.Duration `yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps any single wait. Default: 10s.
	MaxDelay time.Duration `yaml:"max_delay" mapstructure:"max_delay"`

	// Factor multiplies the delay after each retry. Default: 2.
	Factor float64 `yaml:"factor" mapstructure:"factor"`

	// Jitter spreads each delay by up to ±Jitter of itself.
	Jitter float64 `yaml:"jitter" mapstructure:"jitter"`

	// Retryable decides whether an error is worth another try.
	// Nil means IsRetryable.
	Retryable func(err error) bool `yaml:"-" mapstructure:"-"`

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error) `yaml:"-" mapstructure:"-"`
}

// DefaultPolicy is used for enrichment provider calls.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Factor:    2,
		Jitter:    0.2,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Factor < 1 {
		p.Factor = def.Factor
	}
	p.Jitter = math.Max(0, math.Min(1, p.Jitter))
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	return p
}

// Delay returns the wait before retry number attempt (zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	d = math.Min(d, float64(p.MaxDelay))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(0, d))
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts-1 {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		t := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
	return zero, err
}

// Do is Retry for calls without a result.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// LogRetries returns an OnRetry hook that logs through the global logger.
func LogRetries(source, op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("source", source),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
