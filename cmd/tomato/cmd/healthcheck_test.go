package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		responseBody   interface{}
		expectedStatus string
		expectError    bool
		expectInvalid  bool
	}{
		{
			name:           "healthy server",
			statusCode:     http.StatusOK,
			responseBody:   HealthResponse{Status: "healthy"},
			expectedStatus: "healthy",
		},
		{
			name:           "unhealthy payload still parses",
			statusCode:     http.StatusOK,
			responseBody:   HealthResponse{Status: "unhealthy"},
			expectedStatus: "unhealthy",
		},
		{
			name:         "unhealthy server (503)",
			statusCode:   http.StatusServiceUnavailable,
			responseBody: HealthResponse{Status: "unhealthy"},
			expectError:  true,
		},
		{
			name:          "invalid response",
			statusCode:    http.StatusOK,
			responseBody:  "not json",
			expectError:   true,
			expectInvalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if str, ok := tt.responseBody.(string); ok {
					fmt.Fprint(w, str)
				} else {
					_ = json.NewEncoder(w).Encode(tt.responseBody)
				}
			}))
			defer server.Close()

			status, err := checkHealth(server.URL, 5*time.Second)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				if tt.expectInvalid && !errors.Is(err, errInvalidResponse) {
					t.Errorf("expected errInvalidResponse, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status != tt.expectedStatus {
				t.Errorf("expected status=%s, got %s", tt.expectedStatus, status)
			}
		})
	}
}

func TestCheckHealthTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := checkHealth(server.URL, 100*time.Millisecond)
	if err == nil {
		t.Error("expected timeout error, got none")
	}
}

func TestResolveHealthcheckURL(t *testing.T) {
	originalPort := os.Getenv("SERVER_PORT")
	defer os.Setenv("SERVER_PORT", originalPort)

	tests := []struct {
		name       string
		urlFlag    string
		serverPort string
		expected   string
	}{
		{
			name:     "explicit URL",
			urlFlag:  "http://example.com/healthz",
			expected: "http://example.com/healthz",
		},
		{
			name:       "default with SERVER_PORT",
			serverPort: "9000",
			expected:   "http://localhost:9000/healthz",
		},
		{
			name:     "default without SERVER_PORT",
			expected: "http://localhost:8080/healthz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthcheckURL = tt.urlFlag
			if tt.serverPort != "" {
				os.Setenv("SERVER_PORT", tt.serverPort)
			} else {
				os.Unsetenv("SERVER_PORT")
			}

			if url := resolveHealthcheckURL(); url != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, url)
			}
		})
	}
}
