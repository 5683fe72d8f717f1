// Package resilience wraps calls to enrichment providers with retries and
// per-source circuit breakers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is a breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned without calling through while a breaker is open.
var ErrOpen = eris.New("resilience: circuit open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Failures is how many consecutive failures open the breaker. Default: 5.
	Failures int `yaml:"failures" mapstructure:"failures"`
	// Cooldown is how long the breaker stays open before a probe. Default: 30s.
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

func (c BreakerConfig) normalized() BreakerConfig {
	if c.Failures <= 0 {
		c.Failures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// Breaker stops calling a source that keeps failing. After Cooldown a single
// probe is let through; its outcome closes or reopens the breaker.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.normalized(), now: time.Now, state: StateClosed}
}

// Call runs fn unless the breaker is open. A panic in fn counts as a failure
// and keeps unwinding. A call cut short by ctx is not counted either way.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (v T, err error) {
	if !b.allow() {
		return v, eris.Wrapf(ErrOpen, "source %s", b.name)
	}
	returned := false
	defer func() {
		if !returned {
			b.record(true)
		}
	}()

	v, err = fn(ctx)
	returned = true
	if err != nil && ctx.Err() != nil {
		b.release()
		return v, err
	}
	b.record(err != nil)
	return v, err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		// one probe at a time
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

// release ends a probe without an outcome.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if !failed {
		b.failures = 0
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.Failures {
		b.openedAt = b.now()
		if b.state != StateOpen {
			b.setState(StateOpen)
		}
	}
}

func (b *Breaker) setState(s State) {
	zap.L().Info("resilience: breaker state change",
		zap.String("source", b.name),
		zap.String("from", string(b.state)),
		zap.String("to", string(s)),
	)
	b.state = s
}

// Breakers holds one breaker per source, created on first use.
type Breakers struct {
	cfg BreakerConfig
	mu  sync.Mutex
	m   map[string]*Breaker
}

// NewBreakers creates an empty set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, m: make(map[string]*Breaker)}
}

// For returns the breaker for source.
func (bs *Breakers) For(source string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.m[source]
	if !ok {
		b = NewBreaker(source, bs.cfg)
		bs.m[source] = b
	}
	return b
}

// States snapshots every breaker's state keyed by source.
func (bs *Breakers) States() map[string]State {
	bs.mu.Lock()
	all := make(map[string]*Breaker, len(bs.m))
	for n, b := range bs.m {
		all[n] = b
	}
	bs.mu.Unlock()

	out := make(map[string]State, len(all))
	for n, b := range all {
		out[n] = b.State()
	}
	return out
}
