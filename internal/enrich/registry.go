// Package enrich runs concurrent batch enrichment of business records
// against pluggable source adapters, tracking progress per request.
package enrich

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

var (
	// ErrNoSources is returned when a batch resolves to an empty source list.
	ErrNoSources = eris.New("enrich: no sources configured")
	// ErrUnknownSource is returned when a batch names an unregistered source.
	ErrUnknownSource = eris.New("enrich: unknown source")
	// ErrInvalidConfig is returned for unusable coordinator or matcher settings.
	ErrInvalidConfig = eris.New("enrich: invalid config")
	// ErrRequestNotFound is returned for request ids the coordinator does not know.
	ErrRequestNotFound = eris.New("enrich: request not found")
	// ErrDuplicateRequest is returned when a caller reuses an active request id.
	ErrDuplicateRequest = eris.New("enrich: request id already active")
	// ErrNoUsableResult marks a business that every source missed.
	ErrNoUsableResult = eris.New("enrich: no source returned a usable result")
)

// Enricher is a source adapter. A nil result with a nil error means the
// source has no match for the business; errors are reserved for transport,
// auth and rate-limit failures.
type Enricher interface {
	Enrich(ctx context.Context, business model.Business) (*model.EnrichmentResult, error)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, business model.Business) (*model.EnrichmentResult, error)

// Enrich calls f.
func (f EnricherFunc) Enrich(ctx context.Context, b model.Business) (*model.EnrichmentResult, error) {
	return f(ctx, b)
}

// Registry maps source names to adapters. It may change while batches run;
// a batch resolves its adapters at start.
type Registry struct {
	mu        sync.RWMutex
	enrichers map[model.Source]Enricher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{enrichers: make(map[model.Source]Enricher)}
}

// AddEnricher registers or replaces the adapter for source.
func (r *Registry) AddEnricher(source model.Source, e Enricher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrichers[source] = e
}

// RemoveEnricher unregisters source and reports whether it was present.
func (r *Registry) RemoveEnricher(source model.Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.enrichers[source]
	delete(r.enrichers, source)
	return ok
}

// Get returns the adapter for source.
func (r *Registry) Get(source model.Source) (Enricher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enrichers[source]
	return e, ok
}

// Sources returns the registered source names in sorted order.
func (r *Registry) Sources() []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Source, 0, len(r.enrichers))
	for s := range r.enrichers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
