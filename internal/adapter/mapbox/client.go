package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/couchcryptid/kinetic-event-fusion/internal/observability"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// pingPoint is a known on-land theatre coordinate used by Ping.
var pingPoint = domain.Point{Lat: 50.4501, Lon: 30.5234}

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client paced to rps requests per second.
func NewClient(token string, timeout time.Duration, rps float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	burst := max(1, int(rps))
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode converts a place name to coordinates, country and region.
func (c *Client) ForwardGeocode(ctx context.Context, name string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(strings.TrimSpace(name)))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place,locality,neighborhood,district,region"},
	}

	return c.doRequest(ctx, u+"?"+params.Encode(), "forward")
}

// ReverseGeocode converts coordinates to country and region.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	return c.doRequest(ctx, u+"?"+params.Encode(), "reverse")
}

// Ping checks that the API answers with the configured token.
func (c *Client) Ping(ctx context.Context) error {
	r, err := c.ReverseGeocode(ctx, pingPoint.Lat, pingPoint.Lon)
	if err != nil {
		return fmt.Errorf("gazetteer probe: %w", err)
	}
	if r.CountryCode == "" {
		return fmt.Errorf("gazetteer probe: no country for probe point")
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) (domain.GeocodingResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.observe(method, "error")
			return domain.GeocodingResult{}, fmt.Errorf("%s geocode rate limit: %w", method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.observe(method, "error")
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.observe(method, "error")
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		c.observe(method, "error")
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		c.observe(method, "empty")
		return domain.GeocodingResult{}, nil
	}

	c.observe(method, "success")
	return mapboxResp.Features[0].result(), nil
}

func (c *Client) observe(method, outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, outcome).Inc()
	}
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string       `json:"id"`
	Center     []float64    `json:"center"` // [lon, lat]
	PlaceName  string       `json:"place_name"`
	Text       string       `json:"text"`
	Relevance  float64      `json:"relevance"`
	Properties properties   `json:"properties"`
	Context    []contextRef `json:"context"`
}

type properties struct {
	ShortCode string `json:"short_code"`
}

// contextRef is one enclosing administrative area, e.g. id "region.123".
type contextRef struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}

func (f feature) result() domain.GeocodingResult {
	r := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		r.Lon = f.Center[0]
		r.Lat = f.Center[1]
	}
	// The feature itself may be the region or country.
	refs := append([]contextRef{{ID: f.ID, Text: f.Text, ShortCode: f.Properties.ShortCode}}, f.Context...)
	for _, ref := range refs {
		kind, _, _ := strings.Cut(ref.ID, ".")
		switch kind {
		case "country":
			r.CountryCode = strings.ToUpper(ref.ShortCode)
		case "region":
			if r.Region == "" {
				r.Region = ref.Text
			}
		}
	}
	return r
}
