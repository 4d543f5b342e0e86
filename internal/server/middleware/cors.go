package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORS allows browser dashboards on allowedOrigins to read the API. An empty
// list or "*" allows any origin. Preflight requests are answered here and
// never reach the handlers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", "Authorization", APIKeyHeader}, ", ")
	anyOrigin := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			allowed := origin != "" && (anyOrigin || slices.ContainsFunc(allowedOrigins, func(o string) bool {
				return strings.EqualFold(o, origin)
			}))
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				// Clients read the build state without parsing the body.
				w.Header().Set("Access-Control-Expose-Headers", SnapshotStateHeader)
			}

			if r.Method == http.MethodOptions {
				if allowed {
					w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
