package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(1000))
}

func TestGeocodeSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "test-key", query.Get("key"))
		assert.Equal(t, "1000 Bollinger Canyon Rd, San Ramon", query.Get("address"))
		assert.Equal(t, "false", query.Get("sensor"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [
				{"geometry": {"location": {"lat": 37.7749, "lng": -122.4194}}},
				{"geometry": {"location": {"lat": 0, "lng": 0}}}
			]
		}`))
	})

	lat, lon, err := client.Geocode(context.Background(), "1000 Bollinger Canyon Rd, San Ramon")
	require.NoError(t, err)
	assert.InDelta(t, 37.7749, lat, 1e-9)
	assert.InDelta(t, -122.4194, lon, 1e-9)
}

func TestGeocodeZeroResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	})

	_, _, err := client.Geocode(context.Background(), "nowhere at all")
	var geocodeErr *GeocodeError
	require.ErrorAs(t, err, &geocodeErr)
	assert.Equal(t, "ZERO_RESULTS", geocodeErr.Status)
}

func TestGeocodeAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid."}`))
	})

	_, _, err := client.Geocode(context.Background(), "somewhere")
	var geocodeErr *GeocodeError
	require.ErrorAs(t, err, &geocodeErr)
	assert.Equal(t, "REQUEST_DENIED", geocodeErr.Status)
	assert.Contains(t, geocodeErr.Error(), "API key is invalid")
}

func TestGeocodeHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := client.Geocode(context.Background(), "somewhere")
	var geocodeErr *GeocodeError
	require.ErrorAs(t, err, &geocodeErr)
	assert.Equal(t, "HTTP 502", geocodeErr.Status)
}

func TestGeocodeEmptyAddress(t *testing.T) {
	client := NewClient("test-key")
	_, _, err := client.Geocode(context.Background(), "")
	require.Error(t, err)
	var geocodeErr *GeocodeError
	assert.False(t, errors.As(err, &geocodeErr), "empty address is a caller bug, not an API failure")
}
