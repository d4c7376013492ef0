package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// requestIDHeader is honored when a proxy in front of the gateway has
// already assigned an id; otherwise one is minted here.
const requestIDHeader = "X-Request-ID"

type contextKey string

// RequestIDKey is the context key carrying the correlation id.
const RequestIDKey contextKey = "request_id"

// CorrelationID tags every request with an id and stores a
// request-scoped logger in the context. Handlers pick it up with
// zerolog.Ctx, so a stream abort deep inside a renderer still logs the
// id of the query that died.
func CorrelationID(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			reqLogger := logger.With().Str("request_id", id).Logger()
			ctx := context.WithValue(r.Context(), RequestIDKey, id)
			ctx = reqLogger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the correlation id stored by CorrelationID, or
// "" outside the middleware chain.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
