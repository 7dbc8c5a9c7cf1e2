package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyAuth validates requests against a backend API key, checking
// X-API-Key first and falling back to Authorization: Bearer <key>.
// Grounded verbatim on the teacher's internal/api.APIKeyAuth.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					key = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}
			if key == "" {
				respondJSON(w, http.StatusUnauthorized, errorResponse{
					ErrorCode: "E306", Message: "missing API key: provide X-API-Key or Authorization: Bearer <key>",
				})
				return
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				respondJSON(w, http.StatusForbidden, errorResponse{ErrorCode: "E306", Message: "invalid API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
