package enrich

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

// Policy is the source policy file: which sources run by default, in what
// order, and what each costs.
type Policy struct {
	Defaults PolicyDefaults                `yaml:"defaults"`
	Sources  map[model.Source]SourcePolicy `yaml:"sources"`
}

// PolicyDefaults apply to every batch unless the caller overrides them.
type PolicyDefaults struct {
	Order         []model.Source `yaml:"order"`
	FreshnessDays int            `yaml:"freshness_days"`
}

// SourcePolicy configures one source.
type SourcePolicy struct {
	CostPerCallUSD float64 `yaml:"cost_per_call_usd"`
	Disabled       bool    `yaml:"disabled"`
}

// LoadPolicy reads a source policy from a YAML file with a top-level
// "enrichment" key.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read policy %s", path)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a source policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var wrapper struct {
		Enrichment Policy `yaml:"enrichment"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "enrich: parse policy")
	}
	p := &wrapper.Enrichment
	if p.Sources == nil {
		p.Sources = make(map[model.Source]SourcePolicy)
	}
	if p.Defaults.FreshnessDays < 0 {
		return nil, eris.Wrap(ErrInvalidConfig, "policy freshness_days must be >= 0")
	}
	for name, sp := range p.Sources {
		if sp.CostPerCallUSD < 0 {
			return nil, eris.Wrapf(ErrInvalidConfig, "policy cost for %s must be >= 0", name)
		}
	}
	return p, nil
}

// Freshness returns the policy freshness window, or fallback when unset.
func (p *Policy) Freshness(fallback time.Duration) time.Duration {
	if p == nil || p.Defaults.FreshnessDays == 0 {
		return fallback
	}
	return time.Duration(p.Defaults.FreshnessDays) * 24 * time.Hour
}

// Cost returns the configured per-call cost of source.
func (p *Policy) Cost(source model.Source) float64 {
	if p == nil {
		return 0
	}
	return p.Sources[source].CostPerCallUSD
}

// Disabled reports whether source is switched off.
func (p *Policy) Disabled(source model.Source) bool {
	return p != nil && p.Sources[source].Disabled
}

// Order returns the default source order.
func (p *Policy) Order() []model.Source {
	if p == nil {
		return nil
	}
	return append([]model.Source(nil), p.Defaults.Order...)
}
