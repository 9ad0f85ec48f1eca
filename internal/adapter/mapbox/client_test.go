package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func bakhmutFeature() feature {
	return feature{
		ID:        "place.123",
		Center:    []float64{38.0, 48.59},
		PlaceName: "Bakhmut, Donetsk Oblast, Ukraine",
		Text:      "Bakhmut",
		Relevance: 0.95,
		Context: []contextRef{
			{ID: "district.9", Text: "Bakhmut Raion"},
			{ID: "region.7", Text: "Donetsk Oblast", ShortCode: "UA-14"},
			{ID: "country.1", Text: "Ukraine", ShortCode: "ua"},
		},
	}
}

func serve(t *testing.T, check func(r *http.Request), resp response) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ForwardGeocode_Success(t *testing.T) {
	srv := serve(t, func(r *http.Request) {
		assert.Contains(t, r.URL.Path, "Bakhmut")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))
	}, response{Features: []feature{bakhmutFeature()}})

	c := testClient(srv.URL)
	result, err := c.ForwardGeocode(context.Background(), "Bakhmut")
	require.NoError(t, err)

	assert.Equal(t, 48.59, result.Lat)
	assert.Equal(t, 38.0, result.Lon)
	assert.Equal(t, "UA", result.CountryCode)
	assert.Equal(t, "Donetsk Oblast", result.Region)
	assert.Equal(t, "Bakhmut", result.PlaceName)
	assert.Equal(t, 0.95, result.Confidence)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "success")), 1e-9)
}

func TestClient_ReverseGeocode_LonLatOrder(t *testing.T) {
	srv := serve(t, func(r *http.Request) {
		assert.Contains(t, r.URL.Path, "38.000000,48.590000")
	}, response{Features: []feature{bakhmutFeature()}})

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), 48.59, 38.0)
	require.NoError(t, err)
	assert.Equal(t, "UA", result.CountryCode)
}

func TestClient_FeatureIsCountry(t *testing.T) {
	srv := serve(t, nil, response{Features: []feature{{
		ID: "country.5", Text: "Russia", Center: []float64{37.6, 55.7},
		Properties: properties{ShortCode: "ru"},
	}}})

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), 55.7, 37.6)
	require.NoError(t, err)
	assert.Equal(t, "RU", result.CountryCode)
	assert.Empty(t, result.Region)
}

func TestClient_ForwardGeocode_NoResults(t *testing.T) {
	srv := serve(t, nil, response{Features: []feature{}})

	c := testClient(srv.URL)
	result, err := c.ForwardGeocode(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "empty")), 1e-9)
}

func TestClient_ForwardGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.token = "bad-token"

	_, err := c.ForwardGeocode(context.Background(), "Bakhmut")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("forward", "error")), 1e-9)
}

func TestClient_ForwardGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.ForwardGeocode(context.Background(), "Bakhmut")
	require.Error(t, err)
}

func TestClient_RateLimiterHonoursContext(t *testing.T) {
	srv := serve(t, nil, response{Features: []feature{bakhmutFeature()}})
	c := NewClient(testToken, time.Second, 0.001, testMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = srv.URL

	// the first request consumes the single burst token
	_, err := c.ReverseGeocode(context.Background(), 48.59, 38.0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ReverseGeocode(ctx, 48.59, 38.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestClient_Ping(t *testing.T) {
	ok := serve(t, nil, response{Features: []feature{bakhmutFeature()}})
	require.NoError(t, testClient(ok.URL).Ping(context.Background()))

	empty := serve(t, nil, response{})
	require.Error(t, testClient(empty.URL).Ping(context.Background()))
}
