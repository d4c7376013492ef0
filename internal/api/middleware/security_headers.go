package middleware

import "net/http"

// SecurityHeaders hardens every response. The gateway serves data, not
// HTML, so the content security policy forbids loading anything at all;
// nosniff matters most here because responses switch between JSON, XML,
// CSV, and KML by path segment. HSTS is only meaningful (and only sent)
// on TLS connections.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
