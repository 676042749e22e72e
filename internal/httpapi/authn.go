package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"orchflow.org/access/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	adminRole = "admin"
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth enforces bearer-token authentication on every non-public path.
// Without a configured signing secret the surface runs open, which is only
// intended for tests and local development.
func (a *API) withAuth(next http.Handler) http.Handler {
	if !auth.SupportsTokens() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates mutations behind the admin role claim.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !auth.SupportsTokens() {
		return true
	}
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !auth.HasRole(r.Context(), adminRole) {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
