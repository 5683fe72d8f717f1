package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.nationalPhoneNumber")

		var body SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Acme Plumbing San Francisco CA", body.TextQuery)
		assert.Equal(t, 5, body.MaxResultCount)

		_ = json.NewEncoder(w).Encode(SearchResponse{Places: []Place{{
			ID:                  "p1",
			DisplayName:         DisplayName{Text: "Acme Plumbing"},
			NationalPhoneNumber: "(415) 555-1234",
			BusinessStatus:      "OPERATIONAL",
			Rating:              4.6,
			UserRatingCount:     212,
		}}})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL+"/"), WithRateLimit(0))
	resp, err := c.SearchText(context.Background(), SearchRequest{TextQuery: "Acme Plumbing San Francisco CA", MaxResultCount: 5})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	p := resp.Places[0]
	assert.Equal(t, "Acme Plumbing", p.DisplayName.Text)
	assert.Equal(t, "(415) 555-1234", p.Phone())
	assert.True(t, p.Operational())
	assert.Equal(t, 212, p.UserRatingCount)
}

func TestSearchText_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.SearchText(context.Background(), SearchRequest{TextQuery: "x"})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Contains(t, se.Body, "quota")
}

func TestSearchText_EmptyQuery(t *testing.T) {
	c := NewClient("k")
	_, err := c.SearchText(context.Background(), SearchRequest{TextQuery: "  "})
	assert.Error(t, err)
}

func TestSearchText_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).SearchText(context.Background(), SearchRequest{TextQuery: "x"})
	assert.ErrorContains(t, err, "unmarshal")
}

func TestGetPlace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/places/abc 1", r.URL.Path)
		assert.NotContains(t, r.Header.Get("X-Goog-FieldMask"), "places.")
		_ = json.NewEncoder(w).Encode(Place{ID: "abc 1", BusinessStatus: "CLOSED_PERMANENTLY", InternationalPhoneNumber: "+1 415-555-1234"})
	}))
	defer srv.Close()

	p, err := NewClient("k", WithBaseURL(srv.URL)).GetPlace(context.Background(), "abc 1")
	require.NoError(t, err)
	assert.False(t, p.Operational())
	assert.Equal(t, "+1 415-555-1234", p.Phone())

	_, err = NewClient("k").GetPlace(context.Background(), "")
	assert.Error(t, err)
}

func TestRateLimit_ContextCancelled(t *testing.T) {
	c := NewClient("k", WithRateLimit(0.001))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SearchText(ctx, SearchRequest{TextQuery: "x"})
	assert.ErrorContains(t, err, "rate limit")
}
