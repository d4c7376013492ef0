package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/config"
	"github.com/bmlt-enabled/tomato/internal/semantic"
)

// newTestRouter wires the router with no database. GetFieldKeys serves
// the static catalog, which is enough to drive a request through the
// whole middleware chain.
func newTestRouter() http.Handler {
	svc := semantic.NewService(nil, nil, nil, nil, nil, config.MapConfig{}, zerolog.Nop())
	return NewRouter(Deps{Semantic: svc, Version: "test", Logger: zerolog.Nop()})
}

func TestRouterServesSemanticQuery(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/json/?switcher=GetFieldKeys", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, len(semantic.SearchKeys))
}

func TestRouterPreservesRequestID(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/json/?switcher=GetFieldKeys", nil)
	req.Header.Set("X-Request-ID", "corr-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "corr-123", w.Header().Get("X-Request-ID"))
}

func TestRouterRejectsUnknownFormat(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/html/?switcher=GetFieldKeys", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRouterRedirectsMissingTrailingSlash(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/json?switcher=GetFieldKeys", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/main_server/client_interface/json/")
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/main_server/client_interface/json/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouterUnknownPath(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/main_server/admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterHealthzWithoutDatabase(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "unhealthy", response.Status)
}

func TestRouterExposesMetrics(t *testing.T) {
	router := newTestRouter()

	// Drive one semantic query through so the counters have children.
	seed := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/json/?switcher=GetFieldKeys", nil)
	router.ServeHTTP(httptest.NewRecorder(), seed)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "tomato_semantic_queries_total")
	assert.Contains(t, body, "tomato_http_requests_total")
}
