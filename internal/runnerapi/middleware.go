package runnerapi

import "net/http"

// authHeader carries the shared secret on every call, matching the
// connector/remote client and the external-to-internal proxy hop
// (spec §6: "All endpoints require header X-Reproserver-Authenticate").
const authHeader = "X-Reproserver-Authenticate"

// requireSecret rejects any request whose X-Reproserver-Authenticate
// header doesn't match secret, grounded on the teacher's
// AuthMiddleware.Handler shape (internal/auth/middleware.go) generalized
// from bearer-JWT validation to a single shared secret comparison.
func requireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" || r.Header.Get(authHeader) != secret {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
