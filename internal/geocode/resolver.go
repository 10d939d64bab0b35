// Package geocode resolves free-text locations to coordinates through the
// Nominatim API, memoized in an injectable cache so the batch engine never
// hits the network twice for the same place.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/telemetry"
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Cache memoizes resolved locations. Implemented by the Redis cache service;
// any TTL policy lives behind this interface.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Resolver looks up coordinates for a location text. A lookup failure or
// timeout is a transient error; callers treat it as "no location" for the
// current run.
type Resolver struct {
	client    *http.Client
	baseURL   string
	userAgent string
	cache     Cache
	cacheTTL  time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBaseURL overrides the Nominatim endpoint, used in tests.
func WithBaseURL(u string) Option {
	return func(r *Resolver) { r.baseURL = u }
}

// WithCache installs a lookup cache with the given TTL.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

// NewResolver creates a resolver with a bounded HTTP client.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:   "https://nominatim.openstreetmap.org",
		userAgent: "dadlink-engine/1.0",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolve returns coordinates for the location text, consulting the cache
// first. A nil result with nil error means the place is unknown.
func (r *Resolver) Resolve(ctx context.Context, locationText string) (*Coordinates, error) {
	locationText = strings.TrimSpace(locationText)
	if locationText == "" {
		return nil, nil
	}

	key := cacheKey(locationText)
	if r.cache != nil {
		var cached Coordinates
		if err := r.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	coords, err := r.lookup(ctx, locationText)
	if err != nil {
		return nil, apperrors.NewTransientLookupError("geocode", err)
	}
	if coords == nil {
		return nil, nil
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, key, coords, r.cacheTTL); err != nil {
			telemetry.LogFromContext(ctx).WithError(err).Warn("Failed to cache geocode result")
		}
	}
	return coords, nil
}

func (r *Resolver) lookup(ctx context.Context, locationText string) (*Coordinates, error) {
	params := url.Values{}
	params.Set("q", locationText)
	params.Set("format", "json")
	params.Set("limit", "1")

	u := fmt.Sprintf("%s/search?%s", r.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim API error: %s", resp.Status)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in response: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in response: %w", err)
	}

	return &Coordinates{Latitude: lat, Longitude: lon}, nil
}

func cacheKey(locationText string) string {
	return "geocode:" + strings.ToLower(locationText)
}
