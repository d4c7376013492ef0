package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// healthcheckCmd represents the healthcheck command
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /healthz endpoint.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise.

Exit codes:
  0 - Server is healthy
  1 - Server is unhealthy or unreachable
  2 - Invalid response from server`,
		RunE: runHealthcheck,
	}

	// Flags
	healthcheckTimeout int
	healthcheckURL     string
)

// errInvalidResponse marks a response the check could not interpret.
var errInvalidResponse = errors.New("invalid health response")

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/healthz)")
}

// HealthResponse matches the response from internal/api/handlers/health.go
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks,omitempty"`
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	url := resolveHealthcheckURL()

	status, err := checkHealth(url, time.Duration(healthcheckTimeout)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		if errors.Is(err, errInvalidResponse) {
			os.Exit(2)
		}
		os.Exit(1)
		return err
	}

	if status != "healthy" {
		fmt.Fprintf(os.Stderr, "Server status: %s\n", status)
		os.Exit(1)
		return fmt.Errorf("unhealthy: status=%s", status)
	}

	// Success - server is healthy
	return nil
}

func resolveHealthcheckURL() string {
	if healthcheckURL != "" {
		return healthcheckURL
	}
	// Default to localhost with SERVER_PORT from environment
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/healthz", port)
}

// checkHealth calls the health endpoint and returns the status it
// reports. A non-200 response is an error regardless of body.
func checkHealth(url string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidResponse, err)
	}
	return healthResp.Status, nil
}
