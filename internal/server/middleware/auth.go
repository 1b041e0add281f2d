package middleware

import (
	"net/http"
	"strings"

	"union-registry/backend/internal/platform/apierror"
	"union-registry/backend/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator validates access tokens.
type AccessValidator interface {
	ValidateAccess(token string) (*security.Claims, error)
}

// Authenticate validates the Bearer access token and stores the principal in the request context.
// Requests without a valid token are rejected with 401.
func Authenticate(tokens AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearer(r.Header.Get("Authorization"))
			if token == "" {
				apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			claims, err := tokens.ValidateAccess(token)
			if err != nil {
				apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Principal())))
		})
	}
}

// ExtractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func ExtractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
