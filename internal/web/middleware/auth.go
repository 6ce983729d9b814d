package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// RejectFunc writes the response for a request that failed authentication.
type RejectFunc func(w http.ResponseWriter, status int, msg string)

// APIKeyAuth returns middleware that validates the X-API-Key header against
// keys. With no keys configured, all requests pass through.
func APIKeyAuth(keys []string, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				reject(w, http.StatusUnauthorized, "missing API key")
				return
			}

			if !isValidAPIKey(apiKey, keys) {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				reject(w, http.StatusForbidden, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidAPIKey checks if the provided key matches any configured key.
// Every key is compared in constant time.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
