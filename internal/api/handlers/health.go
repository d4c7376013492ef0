package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckResult is the outcome of a single health check.
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheck is the /healthz response body.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// HealthChecker answers /healthz with a database ping.
type HealthChecker struct {
	pool    *pgxpool.Pool
	version string
}

func NewHealthChecker(pool *pgxpool.Pool, version string) *HealthChecker {
	return &HealthChecker{pool: pool, version: version}
}

// Healthz returns the health check handler. A failing database check
// turns the response into a 503 so load balancers rotate the instance
// out.
func (h *HealthChecker) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database": h.checkDatabase(ctx),
		}

		status := "healthy"
		code := http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				status = "unhealthy"
				code = http.StatusServiceUnavailable
				break
			}
		}

		response := HealthCheck{
			Status:    status,
			Version:   h.version,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(response)
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.pool == nil {
		return CheckResult{Status: "fail", Message: "database pool not initialized"}
	}

	dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.pool.Ping(dbCtx); err != nil {
		return CheckResult{Status: "fail", Message: err.Error()}
	}
	return CheckResult{Status: "pass", LatencyMs: time.Since(start).Milliseconds()}
}
