package enrich

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

func TestMergeEnrichmentData_NewerWins(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	existing := FromLegacy(map[string]any{
		"email": map[string]any{"value": "a@x.com", "provider": "p1", "collected_at": t1},
	}, t1)
	incoming := FromLegacy(map[string]any{
		"email": map[string]any{"value": "b@x.com", "provider": "p1", "collected_at": t2.Format(time.RFC3339)},
	}, t1)

	merged := MergeEnrichmentData(existing, incoming)
	v, ok := merged.Latest("email")
	require.True(t, ok)
	assert.Equal(t, "b@x.com", v.Value)
	assert.Len(t, merged["email"], 1)

	// A stale value never replaces a fresher one from the same provider.
	merged = MergeEnrichmentData(incoming, existing)
	v, _ = merged.Latest("email")
	assert.Equal(t, "b@x.com", v.Value)
}

func TestMergeEnrichmentData_KeepsOtherProviders(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := model.EnrichmentData{"phone": {{Value: "111", Provider: "p2", CollectedAt: t1}}}
	incoming := model.EnrichmentData{"phone": {{Value: "222", Provider: "p1", CollectedAt: t1.Add(time.Hour)}}}

	merged := MergeEnrichmentData(existing, incoming)
	require.Len(t, merged["phone"], 2)
	assert.Equal(t, "p1", merged["phone"][0].Provider)
	assert.Equal(t, "p2", merged["phone"][1].Provider)

	// Inputs are untouched.
	assert.Len(t, existing["phone"], 1)
	assert.Equal(t, "111", existing["phone"][0].Value)
}

func TestMergeEnrichmentData_Associative(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stamp := func(v string, provider string, minutes int) model.StampedValue {
		return model.StampedValue{Value: v, Provider: provider, CollectedAt: base.Add(time.Duration(minutes) * time.Minute)}
	}
	a := model.EnrichmentData{"email": {stamp("a", "p1", 1)}, "phone": {stamp("a", "p2", 1)}}
	b := model.EnrichmentData{"email": {stamp("b", "p1", 2), stamp("b", "p2", 2)}}
	c := model.EnrichmentData{"email": {stamp("c", "p1", 3)}, "phone": {stamp("c", "p2", 3)}}

	abc := MergeEnrichmentData(MergeEnrichmentData(a, b), c)
	bca := MergeEnrichmentData(MergeEnrichmentData(b, c), a)
	cab := MergeEnrichmentData(c, MergeEnrichmentData(a, b))

	assert.Equal(t, abc, bca)
	assert.Equal(t, abc, cab)
	v, _ := abc.FromProvider("email", "p2")
	assert.Equal(t, "b", v.Value)
}

func TestFromLegacy(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	d := FromLegacy(map[string]any{
		"website": "https://acme.com",
		"broken":  map[string]any{"value": 1, "provider": "p1", "collected_at": "yesterday"},
	}, now)

	v, ok := d.FromProvider("website", "internal")
	require.True(t, ok)
	assert.Equal(t, now, v.CollectedAt)

	// A malformed stamp is treated as a plain value.
	v, ok = d.FromProvider("broken", "internal")
	require.True(t, ok)
	assert.IsType(t, map[string]any{}, v.Value)
}

func TestFromResult(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	d := FromResult(model.EnrichmentResult{Source: "internal", EnrichedAt: at, ProcessedData: map[string]any{"name": "Acme"}})
	v, ok := d.FromProvider("name", "internal")
	require.True(t, ok)
	assert.Equal(t, "Acme", v.Value)
	assert.Equal(t, at, v.CollectedAt)
}

func TestGenerateCacheKey(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 5, 6, 7, 15, 0, 0, time.UTC)
	key := GenerateCacheKey("b1", model.SourceInternal, at)
	parts := strings.Split(key, ":")
	require.Len(t, parts, 4)
	assert.Equal(t, "enrich", parts[0])
	assert.Equal(t, "internal", parts[1])
	assert.Len(t, parts[2], 16)
	assert.Equal(t, "2026050607", parts[3])

	assert.Equal(t, key, GenerateCacheKey("b1", model.SourceInternal, at.Add(40*time.Minute)))
	assert.NotEqual(t, key, GenerateCacheKey("b1", model.SourceInternal, at.Add(time.Hour)))
	assert.NotEqual(t, key, GenerateCacheKey("b2", model.SourceInternal, at))
	assert.True(t, strings.HasPrefix(GenerateCacheKey("b1", "p2", time.Time{}), "enrich:p2:"))
}

func TestLoadPolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
enrichment:
  defaults:
    order: [internal, vendor]
    freshness_days: 7
  sources:
    vendor:
      cost_per_call_usd: 0.1
`), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Source{"internal", "vendor"}, p.Order())
	assert.Equal(t, 7*24*time.Hour, p.Freshness(time.Hour))
	assert.InDelta(t, 0.1, p.Cost("vendor"), 1e-9)
	assert.Equal(t, 0.0, p.Cost("internal"))
	assert.False(t, p.Disabled("vendor"))

	var none *Policy
	assert.Equal(t, time.Hour, none.Freshness(time.Hour))
	assert.Nil(t, none.Order())

	_, err = LoadPolicy(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = ParsePolicy([]byte("enrichment:\n  sources:\n    x:\n      cost_per_call_usd: -1\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParsePolicy([]byte("enrichment: [not, a, map]"))
	require.Error(t, err)
}
