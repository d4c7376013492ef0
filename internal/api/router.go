package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bmlt-enabled/tomato/internal/api/handlers"
	"github.com/bmlt-enabled/tomato/internal/api/middleware"
	"github.com/bmlt-enabled/tomato/internal/metrics"
	"github.com/bmlt-enabled/tomato/internal/semantic"
)

// Deps carries everything the HTTP surface serves. The pool is shared
// with the import workers; the router never opens its own connections.
type Deps struct {
	Pool     *pgxpool.Pool
	Semantic *semantic.Service
	BaseURL  string
	Debug    bool
	Version  string
	Logger   zerolog.Logger
}

// NewRouter assembles the semantic query endpoint plus the operational
// endpoints, wrapped in the middleware chain: correlation id, tracing,
// metrics, request logging, security headers, CORS.
func NewRouter(deps Deps) http.Handler {
	semanticHandler := handlers.NewSemanticHandler(deps.Semantic, deps.BaseURL, deps.Debug)
	health := handlers.NewHealthChecker(deps.Pool, deps.Version)

	mux := http.NewServeMux()
	mux.Handle("GET /main_server/client_interface/{format}/{$}", http.HandlerFunc(semanticHandler.Query))
	mux.Handle("GET /healthz", health.Healthz())
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = middleware.PublicCORS(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return handler
}
