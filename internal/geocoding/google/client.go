package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bmlt-enabled/tomato/internal/metrics"
)

const (
	// DefaultBaseURL is the Google Maps Geocoding API endpoint.
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 10 * time.Second
	// DefaultRateLimit is 10 requests per second.
	DefaultRateLimit = rate.Limit(10)
)

// GeocodeError reports a failed geocoding attempt: a non-200 response,
// a non-OK API status, or an empty result set.
type GeocodeError struct {
	Status string
	Detail string
}

func (e *GeocodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("geocode failed: %s: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("geocode failed: %s", e.Status)
}

// Client handles communication with the Google Maps Geocoding API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the API endpoint. Tests point this at a local
// httptest server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithRateLimit sets a custom rate limit (requests per second).
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates a new Geocoding API client. The key is sent with
// every request as the `key` query parameter.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(DefaultRateLimit, 1),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode performs forward geocoding (address -> coordinates) and
// returns the first result. Anything other than an OK response carrying
// at least one result is a *GeocodeError. Failures are not retried; the
// caller decides whether an unresolvable address is fatal.
func (c *Client) Geocode(ctx context.Context, address string) (float64, float64, error) {
	if address == "" {
		return 0, 0, fmt.Errorf("address cannot be empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, 0, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("address", address)
	params.Set("sensor", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.GeocodingLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GeocodingRequestsTotal.WithLabelValues("error").Inc()
		return 0, 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.GeocodingRequestsTotal.WithLabelValues("error").Inc()
		return 0, 0, &GeocodeError{Status: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var payload geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.GeocodingRequestsTotal.WithLabelValues("error").Inc()
		return 0, 0, fmt.Errorf("parse json: %w", err)
	}

	if payload.Status != "OK" {
		outcome := "error"
		if payload.Status == "ZERO_RESULTS" {
			outcome = "zero_results"
		}
		metrics.GeocodingRequestsTotal.WithLabelValues(outcome).Inc()
		return 0, 0, &GeocodeError{Status: payload.Status, Detail: payload.ErrorMessage}
	}
	if len(payload.Results) == 0 {
		metrics.GeocodingRequestsTotal.WithLabelValues("zero_results").Inc()
		return 0, 0, &GeocodeError{Status: payload.Status, Detail: "empty result set"}
	}

	metrics.GeocodingRequestsTotal.WithLabelValues("ok").Inc()
	location := payload.Results[0].Geometry.Location
	return location.Lat, location.Lng, nil
}
