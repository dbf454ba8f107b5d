package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// WithCorrelationID guarantees every request carries a correlation
// identifier in the configured header, generating one when the caller did
// not supply it. The identifier is echoed on the response so clients can
// quote it in reports.
func WithCorrelationID(header string, next http.Handler) http.Handler {
	if strings.TrimSpace(header) == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(header))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(header, id)
		}
		w.Header().Set(header, id)
		next.ServeHTTP(w, r)
	})
}

// WithCORS answers preflight requests and stamps allow headers for origins
// on the configured list. An empty list disables cross-origin access
// entirely; "*" opens it.
func WithCORS(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return next
	}
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			_, ok := allowed[origin]
			if allowAll || ok {
				grant := origin
				if allowAll {
					grant = "*"
				}
				w.Header().Set("Access-Control-Allow-Origin", grant)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.Header().Set("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
