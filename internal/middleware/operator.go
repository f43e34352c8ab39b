package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireOperator guards the maintenance endpoints that act on every user,
// such as sweep triggers. Requests must carry the configured token in
// X-Operator-Token. An empty token disables the endpoints.
func RequireOperator(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "operator endpoints disabled", http.StatusForbidden)
				return
			}
			provided := r.Header.Get("X-Operator-Token")
			if provided == "" {
				http.Error(w, "missing operator token", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				http.Error(w, "operator privileges required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
