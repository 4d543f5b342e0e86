package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	// APIKeyHeader carries the service key on REST calls.
	APIKeyHeader = "X-Sportfun-Key"

	// Browsers cannot set headers on a websocket handshake, so /ws also
	// accepts the key as a query parameter.
	apiKeyQuery = "api_key"

	authRealm = "sportfun"
)

// Auth rejects requests that do not present apiKey, either in APIKeyHeader or
// as a Bearer token. Paths listed in public are served without a key. An
// empty apiKey disables the check.
func Auth(apiKey string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			key := requestKey(r)
			switch {
			case key == "":
				deny(w, "missing api key")
			case subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1:
				deny(w, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func requestKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if websocket.IsWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get(apiKeyQuery))
	}
	return ""
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="`+authRealm+`"`)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
