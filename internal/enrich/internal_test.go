package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/cache"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/matcher"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/resilience"
	"github.com/mirqtio/LeadFactory-v1-sub002/pkg/places"
	"github.com/mirqtio/LeadFactory-v1-sub002/pkg/places/mocks"
)

var fixedNow = time.Date(2026, 4, 2, 15, 30, 0, 0, time.UTC)

func acmeBusiness() model.Business {
	return model.Business{
		ID:      "b1",
		Name:    "Acme Plumbing",
		Phone:   "(415) 555-1234",
		Address: "123 Main St",
		City:    "San Francisco",
		State:   "CA",
		Zip:     "94105",
		Website: "https://acmeplumbing.com",
	}
}

func acmePlace() places.Place {
	return places.Place{
		ID:                  "place-acme",
		DisplayName:         places.DisplayName{Text: "Acme Plumbing"},
		FormattedAddress:    "123 Main St, San Francisco, CA 94105",
		NationalPhoneNumber: "(415) 555-1234",
		WebsiteURI:          "https://www.acmeplumbing.com/",
		BusinessStatus:      "OPERATIONAL",
		Rating:              4.5,
		UserRatingCount:     200,
		Types:               []string{"plumber"},
		Location:            &places.LatLng{Latitude: 37.79, Longitude: -122.39},
	}
}

func bakeryPlace() places.Place {
	return places.Place{
		ID:                  "place-zeta",
		DisplayName:         places.DisplayName{Text: "Zeta Bakery"},
		FormattedAddress:    "9 Elm Ave, Boston, MA 02110",
		NationalPhoneNumber: "(617) 555-0000",
		BusinessStatus:      "CLOSED_PERMANENTLY",
	}
}

func fastRetry() resilience.Policy {
	return resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newInternal(t *testing.T, client places.Client, opts ...InternalOption) *InternalEnricher {
	t.Helper()
	base := []InternalOption{
		WithInternalClock(func() time.Time { return fixedNow }),
		WithRetryPolicy(fastRetry()),
		WithCostPerSearch(0.017),
	}
	return NewInternalEnricher(client, matcher.New(matcher.DefaultConfig()), append(base, opts...)...)
}

func TestInternalEnricher_PicksBestCandidate(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.MatchedBy(func(r places.SearchRequest) bool {
		return r.TextQuery == "Acme Plumbing 123 Main St, San Francisco, CA 94105" && r.MaxResultCount == 5
	})).Return(&places.SearchResponse{Places: []places.Place{bakeryPlace(), acmePlace()}}, nil).Once()

	res, err := newInternal(t, client).Enrich(context.Background(), acmeBusiness())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, model.SourceInternal, res.Source)
	assert.Equal(t, "b1", res.BusinessID)
	assert.True(t, res.MatchConfidence.AtLeast(model.ConfidenceHigh), "confidence %s", res.MatchConfidence)
	assert.Equal(t, "place-acme", res.ProcessedData["place_id"])
	assert.Equal(t, 2, res.ProcessedData["search_rank"])
	assert.Equal(t, "(415) 555-1234", res.ProcessedData["phone"])
	assert.Len(t, res.Checksum, 64)
	assert.Equal(t, 1.0, res.CompletenessScore)
	assert.InDelta(t, 0.017, res.CostUSD, 1e-9)
	assert.Equal(t, fixedNow, res.EnrichedAt)
	assert.Equal(t, "places-v1", res.DataVersion)
	assert.Equal(t, "Acme Plumbing", res.RawData["displayName"].(map[string]any)["text"])
}

func TestInternalEnricher_RelevanceRaisesScore(t *testing.T) {
	t.Parallel()

	first := mocks.NewMockClient(t)
	first.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{acmePlace()}}, nil).Once()
	second := mocks.NewMockClient(t)
	second.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{bakeryPlace(), acmePlace()}}, nil).Once()

	top, err := newInternal(t, first).Enrich(context.Background(), acmeBusiness())
	require.NoError(t, err)
	lower, err := newInternal(t, second).Enrich(context.Background(), acmeBusiness())
	require.NoError(t, err)

	assert.Greater(t, top.MatchScore, lower.MatchScore)
	assert.Equal(t, model.ConfidenceExact, top.MatchConfidence)
}

func TestInternalEnricher_NoMatch(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{bakeryPlace()}}, nil).Once()

	res, err := newInternal(t, client).Enrich(context.Background(), acmeBusiness())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestInternalEnricher_NoNameSkipsSearch(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	res, err := newInternal(t, client).Enrich(context.Background(), model.Business{ID: "x", Zip: "94105"})
	require.NoError(t, err)
	assert.Nil(t, res)
	client.AssertNotCalled(t, "SearchText", mock.Anything, mock.Anything)
}

func TestInternalEnricher_CachedSearchIsFree(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{acmePlace()}}, nil).Once()

	c := cache.NewMemory[[]places.Place](time.Hour, 100)
	e := newInternal(t, client, WithSearchCache(c))

	first, err := e.Enrich(context.Background(), acmeBusiness())
	require.NoError(t, err)
	second, err := e.Enrich(context.Background(), acmeBusiness())
	require.NoError(t, err)

	assert.InDelta(t, 0.017, first.CostUSD, 1e-9)
	assert.Equal(t, 0.0, second.CostUSD)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, 1, c.Len())
}

func TestInternalEnricher_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(nil, &places.StatusError{StatusCode: 503, Body: "unavailable"}).Once()
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{acmePlace()}}, nil).Once()

	res, err := newInternal(t, client).Enrich(context.Background(), acmeBusiness())
	require.NoError(t, err)
	require.NotNil(t, res)
	client.AssertNumberOfCalls(t, "SearchText", 2)
}

func TestInternalEnricher_PermanentStatusFails(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(nil, &places.StatusError{StatusCode: 403, Body: "bad key"}).Once()

	res, err := newInternal(t, client).Enrich(context.Background(), acmeBusiness())
	require.Error(t, err)
	assert.Nil(t, res)

	var pe *resilience.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 403, pe.StatusCode)
	client.AssertNumberOfCalls(t, "SearchText", 1)
}

func TestInternalEnricher_InCoordinator(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{acmePlace()}}, nil)

	reg := NewRegistry()
	reg.AddEnricher(model.SourceInternal, newInternal(t, client))
	c := NewCoordinator(reg, Options{})

	batch := []model.Business{acmeBusiness(), {ID: "nameless"}}
	res, err := c.EnrichBatch(context.Background(), batch, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessfulEnrichments)
	assert.Equal(t, 1, res.FailedEnrichments)
	assert.InDelta(t, 0.017, res.TotalCostUSD, 1e-9)
}
