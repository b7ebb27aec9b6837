package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/sendloop-systems/sendloop/internal/auth"
)

// AdminAuth returns middleware that requires a valid X-Admin-Key header on
// every request in the group. Invalid or missing keys get a 401 JSON body.
func AdminAuth(verifier *auth.KeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Verify(r.Header.Get("X-Admin-Key")) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "unauthorized",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
