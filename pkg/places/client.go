// Package places is a small client for the Places text search API, the
// backing service of the internal enrichment source.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

var searchFields = []string{
	"id", "displayName", "formattedAddress", "nationalPhoneNumber",
	"internationalPhoneNumber", "websiteUri", "businessStatus", "rating",
	"userRatingCount", "types", "primaryType", "location",
}

// Client searches for places.
type Client interface {
	SearchText(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	GetPlace(ctx context.Context, id string) (*Place, error)
}

// SearchRequest is a text search.
type SearchRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount,omitempty"`
	LanguageCode   string `json:"languageCode,omitempty"`
	RegionCode     string `json:"regionCode,omitempty"`
}

// SearchResponse holds the places matching a search, most relevant first.
type SearchResponse struct {
	Places []Place `json:"places"`
}

// Place is a single result.
type Place struct {
	ID                       string      `json:"id"`
	DisplayName              DisplayName `json:"displayName"`
	FormattedAddress         string      `json:"formattedAddress,omitempty"`
	NationalPhoneNumber      string      `json:"nationalPhoneNumber,omitempty"`
	InternationalPhoneNumber string      `json:"internationalPhoneNumber,omitempty"`
	WebsiteURI               string      `json:"websiteUri,omitempty"`
	BusinessStatus           string      `json:"businessStatus,omitempty"`
	Rating                   float64     `json:"rating,omitempty"`
	UserRatingCount          int         `json:"userRatingCount,omitempty"`
	Types                    []string    `json:"types,omitempty"`
	PrimaryType              string      `json:"primaryType,omitempty"`
	Location                 *LatLng     `json:"location,omitempty"`
}

// DisplayName is a localized name.
type DisplayName struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// LatLng is a coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Operational reports whether the place is open for business.
func (p Place) Operational() bool {
	return p.BusinessStatus == "" || p.BusinessStatus == "OPERATIONAL"
}

// Phone returns the national number, falling back to the international one.
func (p Place) Phone() string {
	if p.NationalPhoneNumber != "" {
		return p.NationalPhoneNumber
	}
	return p.InternationalPhoneNumber
}

// StatusError is a non-200 reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("places: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second. Zero or less removes the cap.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Places client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchText(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(sr.TextQuery) == "" {
		return nil, eris.New("places: empty text query")
	}
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	mask := make([]string, len(searchFields))
	for i, f := range searchFields {
		mask[i] = "places." + f
	}

	var out SearchResponse
	if err := c.do(ctx, http.MethodPost, "/places:searchText", bytes.NewReader(body), strings.Join(mask, ","), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) GetPlace(ctx context.Context, id string) (*Place, error) {
	if id == "" {
		return nil, eris.New("places: empty place id")
	}
	var out Place
	if err := c.do(ctx, http.MethodGet, "/places/"+url.PathEscape(id), nil, strings.Join(searchFields, ","), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader, fieldMask string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "places: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "places: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "places: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eris.Wrap(err, "places: unmarshal response")
	}
	return nil
}
