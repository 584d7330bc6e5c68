package auth

import (
	"encoding/json"
	"net/http"
)

// Middleware returns HTTP middleware enforcing the same API key policy as
// APIKeyInterceptor. Requests whose path is listed in open skip the check,
// so probes and scrapers can reach /api/v1/health and /metrics.
func Middleware(mode, header, key string, open ...string) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(open))
	for _, p := range open {
		public[p] = true
	}
	return func(next http.Handler) http.Handler {
		if !enabled(mode, key) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] || keyMatches(r.Header.Get(header), key) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
		})
	}
}
