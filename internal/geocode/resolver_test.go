package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dadlink/dadlink/internal/errors"
)

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.items[key]
	if !ok {
		return assert.AnError
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = data
	return nil
}

func TestResolver_Resolve(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "amsterdam", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"lat":"52.3728","lon":"4.8936"}]`))
	}))
	defer server.Close()

	resolver := NewResolver(WithBaseURL(server.URL))

	coords, err := resolver.Resolve(context.Background(), "amsterdam")
	require.NoError(t, err)
	require.NotNil(t, coords)
	assert.InDelta(t, 52.3728, coords.Latitude, 0.0001)
	assert.InDelta(t, 4.8936, coords.Longitude, 0.0001)
	assert.Equal(t, 1, hits)
}

func TestResolver_CacheAvoidsSecondLookup(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`[{"lat":"52.37","lon":"4.89"}]`))
	}))
	defer server.Close()

	resolver := NewResolver(WithBaseURL(server.URL), WithCache(newMemoryCache(), time.Hour))

	_, err := resolver.Resolve(context.Background(), "Amsterdam")
	require.NoError(t, err)
	// case-insensitive key
	_, err = resolver.Resolve(context.Background(), "amsterdam")
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
}

func TestResolver_UnknownPlace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	resolver := NewResolver(WithBaseURL(server.URL))

	coords, err := resolver.Resolve(context.Background(), "nowhere in particular")
	assert.NoError(t, err)
	assert.Nil(t, coords)
}

func TestResolver_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resolver := NewResolver(WithBaseURL(server.URL))

	_, err := resolver.Resolve(context.Background(), "amsterdam")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeTransientLookup))
}

func TestResolver_EmptyText(t *testing.T) {
	resolver := NewResolver()
	coords, err := resolver.Resolve(context.Background(), "   ")
	assert.NoError(t, err)
	assert.Nil(t, coords)
}
