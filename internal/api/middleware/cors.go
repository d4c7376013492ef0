package middleware

import "net/http"

// PublicCORS opens the semantic interface to browser clients on any
// origin. The catalog is public read-only data, so there is no origin
// whitelist and no credential sharing. Preflights are answered here and
// never reach the mux, which knows only GET routes.
//
// Content-Disposition is exposed so a script fetching a KML or NAWS
// export can read the attachment filename.
func PublicCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
