package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// TokenMiddleware checks the shared backoffice token on every request.
// An empty configured token disables the check (local development).
func TokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := r.Header.Get("X-Backoffice-Token")
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					json.NewEncoder(w).Encode(map[string]interface{}{
						"error": "Unauthorized",
					})
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
