package auth

import (
	"context"
	"strings"
)

type userContextKey struct{}

type userInfo struct {
	id    string
	roles []string
}

// ContextWithUser attaches the authenticated user and role claims to the
// context. Roles are deduplicated and lowercased.
func ContextWithUser(ctx context.Context, userID string, roles []string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userInfo{id: userID, roles: dedupeRoles(roles)})
}

// UserIDFromContext extracts the authenticated user id from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	info, ok := ctx.Value(userContextKey{}).(userInfo)
	if !ok || info.id == "" {
		return "", false
	}
	return info.id, true
}

// RolesFromContext returns the role claims attached to the context.
func RolesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	info, ok := ctx.Value(userContextKey{}).(userInfo)
	if !ok {
		return nil
	}
	return info.roles
}

// HasRole reports whether the context carries the role claim, ignoring case.
func HasRole(ctx context.Context, role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
