package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"orchflow.org/access/internal/audit"
	"orchflow.org/access/internal/rbac"
)

type grantPermissionRequest struct {
	Permission string `json:"permission"`
}

type assignRoleRequest struct {
	Role      string     `json:"role"`
	Scope     rbac.Scope `json:"scope"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type revokeRoleRequest struct {
	Role  string     `json:"role"`
	Scope rbac.Scope `json:"scope"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access-control service unavailable")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handlePermissionCatalog(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access-control service unavailable")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	if perms == nil {
		perms = []rbac.Permission{}
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access-control service unavailable")
		return
	}
	parts := splitResourcePath(r.URL.Path, "/v1/roles/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleName := parts[0]
	switch parts[1] {
	case "permissions":
		a.handleRolePermissions(w, r, roleName)
	case "compact":
		a.handleRoleCompact(w, r, roleName)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleName string) {
	switch r.Method {
	case http.MethodGet:
		perms, err := a.rbac.RolePermissions(r.Context(), roleName)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		if perms == nil {
			perms = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"role":        roleName,
			"permissions": perms,
		})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req grantPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.GrantPermission(r.Context(), roleName, req.Permission); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.grant", map[string]any{
			"role":       roleName,
			"permission": req.Permission,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleCompact(w http.ResponseWriter, r *http.Request, roleName string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	removed, err := a.rbac.CompactAssignments(r.Context(), roleName)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.assignments.compact", map[string]any{
		"role":    roleName,
		"removed": removed,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"role":    roleName,
		"removed": removed,
	})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access-control service unavailable")
		return
	}
	parts := splitResourcePath(r.URL.Path, "/v1/users/")
	if len(parts) != 2 || parts[1] != "assignments" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]
	switch r.Method {
	case http.MethodGet:
		assignments, err := a.rbac.ListAssignments(r.Context(), userID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		if assignments == nil {
			assignments = []rbac.Assignment{}
		}
		writeJSON(w, http.StatusOK, assignments)
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.AssignRole(r.Context(), userID, req.Role, req.Scope, req.ExpiresAt); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.assign", map[string]any{
			"user_id": userID,
			"role":    req.Role,
			"scope":   req.Scope.String(),
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !a.requireAdmin(w, r) {
			return
		}
		var req revokeRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.RevokeRole(r.Context(), userID, req.Role, req.Scope); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.revoke", map[string]any{
			"user_id": userID,
			"role":    req.Role,
			"scope":   req.Scope.String(),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access-control service unavailable")
		return
	}
	parts := splitResourcePath(r.URL.Path, "/v1/organizations/")
	switch {
	case len(parts) == 2 && parts[1] == "roster":
		a.handleOrganizationRoster(w, r, parts[0])
	case len(parts) == 4 && parts[1] == "users" && parts[3] == "permissions":
		a.handleResolvePermissions(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrganizationRoster(w http.ResponseWriter, r *http.Request, orgSlug string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roster, err := a.rbac.OrganizationRoster(r.Context(), orgSlug)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	if roster == nil {
		roster = []rbac.RosterEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization": orgSlug,
		"roster":       roster,
	})
}

func (a *API) handleResolvePermissions(w http.ResponseWriter, r *http.Request, orgSlug, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.rbac.ResolvePermissions(r.Context(), userID, orgSlug)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"organization": orgSlug,
		"permissions":  perms,
	})
}

func splitResourcePath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "access-control operation failed")
	}
}
