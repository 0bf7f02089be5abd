package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminKeyHeader carries the admin API key
const AdminKeyHeader = "X-Admin-API-Key"

// RequireAdminKey rejects requests whose X-Admin-API-Key does not match key.
// An empty key disables the check; the server warns about it at startup.
func RequireAdminKey(key string) Middleware {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) > 0 {
				got := []byte(r.Header.Get(AdminKeyHeader))
				if subtle.ConstantTimeCompare(got, expected) != 1 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"invalid or missing admin API key"}` + "\n"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
