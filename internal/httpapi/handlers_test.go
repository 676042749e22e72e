package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orchflow.org/access/internal/auth"
	"orchflow.org/access/internal/rbac"
)

type stubStore struct {
	grantPermissionFn    func(context.Context, string, string) error
	upsertAssignmentFn   func(context.Context, string, string, rbac.Scope, *time.Time) error
	revokeAssignmentFn   func(context.Context, string, string, rbac.Scope) error
	listAssignmentsFn    func(context.Context, string, rbac.ScopeFilter, time.Time) ([]rbac.Assignment, error)
	resolvePermissionsFn func(context.Context, string, string, time.Time) ([]string, error)
	rosterFn             func(context.Context, string, time.Time) ([]rbac.RosterEntry, error)
	compactFn            func(context.Context, string, time.Time) (int64, error)
	listRolesFn          func(context.Context) ([]rbac.Role, error)
}

func (s *stubStore) EnsurePermissions(context.Context, []rbac.Permission) error { return nil }

func (s *stubStore) ListPermissions(context.Context) ([]rbac.Permission, error) { return nil, nil }

func (s *stubStore) EnsureRole(_ context.Context, name, displayName string, builtin bool) (rbac.Role, error) {
	return rbac.Role{Name: name, DisplayName: displayName, Builtin: builtin}, nil
}

func (s *stubStore) GetRoleByName(context.Context, string) (rbac.Role, error) {
	return rbac.Role{}, nil
}

func (s *stubStore) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	if s.listRolesFn != nil {
		return s.listRolesFn(ctx)
	}
	return nil, nil
}

func (s *stubStore) RolePermissions(context.Context, string) ([]string, error) { return nil, nil }

func (s *stubStore) GrantPermission(ctx context.Context, roleName, permissionName string) error {
	if s.grantPermissionFn != nil {
		return s.grantPermissionFn(ctx, roleName, permissionName)
	}
	return nil
}

func (s *stubStore) UpsertAssignment(ctx context.Context, userID, roleName string, scope rbac.Scope, expiresAt *time.Time) error {
	if s.upsertAssignmentFn != nil {
		return s.upsertAssignmentFn(ctx, userID, roleName, scope, expiresAt)
	}
	return nil
}

func (s *stubStore) RevokeAssignment(ctx context.Context, userID, roleName string, scope rbac.Scope) error {
	if s.revokeAssignmentFn != nil {
		return s.revokeAssignmentFn(ctx, userID, roleName, scope)
	}
	return nil
}

func (s *stubStore) ListAssignments(ctx context.Context, userID string, filter rbac.ScopeFilter, now time.Time) ([]rbac.Assignment, error) {
	if s.listAssignmentsFn != nil {
		return s.listAssignmentsFn(ctx, userID, filter, now)
	}
	return nil, nil
}

func (s *stubStore) ResolvePermissions(ctx context.Context, userID, orgSlug string, now time.Time) ([]string, error) {
	if s.resolvePermissionsFn != nil {
		return s.resolvePermissionsFn(ctx, userID, orgSlug, now)
	}
	return nil, nil
}

func (s *stubStore) OrganizationRoster(ctx context.Context, orgSlug string, now time.Time) ([]rbac.RosterEntry, error) {
	if s.rosterFn != nil {
		return s.rosterFn(ctx, orgSlug, now)
	}
	return nil, nil
}

func (s *stubStore) CompactAssignments(ctx context.Context, roleName string, now time.Time) (int64, error) {
	if s.compactFn != nil {
		return s.compactFn(ctx, roleName, now)
	}
	return 0, nil
}

func newTestAPI(t *testing.T, store rbac.Store) http.Handler {
	t.Helper()
	t.Setenv("ACCESS_AUTH_SECRET", "")
	auth.ResetSecretCache()
	t.Cleanup(auth.ResetSecretCache)

	svc, err := rbac.NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(ReadyProbe{}, "test", svc).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	handler := newTestAPI(t, &stubStore{})
	rr := doJSON(t, handler, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestResolvePermissionsEndpoint(t *testing.T) {
	store := &stubStore{
		resolvePermissionsFn: func(_ context.Context, userID, org string, _ time.Time) ([]string, error) {
			if userID != "user-a" || org != "org-x" {
				t.Fatalf("unexpected args: %s %s", userID, org)
			}
			return []string{"llm:use", "agents:execute"}, nil
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodGet, "/v1/organizations/org-x/users/user-a/permissions", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		UserID       string   `json:"user_id"`
		Organization string   `json:"organization"`
		Permissions  []string `json:"permissions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.UserID != "user-a" || payload.Organization != "org-x" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if len(payload.Permissions) != 2 || payload.Permissions[0] != "agents:execute" {
		t.Fatalf("expected sorted permission set, got %v", payload.Permissions)
	}
}

func TestResolvePermissionsWildcardRejected(t *testing.T) {
	handler := newTestAPI(t, &stubStore{
		resolvePermissionsFn: func(context.Context, string, string, time.Time) ([]string, error) {
			t.Fatal("store must not be reached")
			return nil, nil
		},
	})
	rr := doJSON(t, handler, http.MethodGet, "/v1/organizations/*/users/user-a/permissions", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRosterEmptyOrganization(t *testing.T) {
	handler := newTestAPI(t, &stubStore{})
	rr := doJSON(t, handler, http.MethodGet, "/v1/organizations/org-z/roster", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Organization string             `json:"organization"`
		Roster       []rbac.RosterEntry `json:"roster"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Roster == nil || len(payload.Roster) != 0 {
		t.Fatalf("expected empty roster array, got %v", payload.Roster)
	}
}

func TestGrantPermissionEndpoint(t *testing.T) {
	var gotRole, gotPerm string
	store := &stubStore{
		grantPermissionFn: func(_ context.Context, roleName, permName string) error {
			gotRole, gotPerm = roleName, permName
			return nil
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodPost, "/v1/roles/viewer/permissions", map[string]any{"permission": "llm:use"}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotRole != "viewer" || gotPerm != "llm:use" {
		t.Fatalf("unexpected grant args: %s %s", gotRole, gotPerm)
	}
}

func TestGrantPermissionUnknownRole(t *testing.T) {
	store := &stubStore{
		grantPermissionFn: func(context.Context, string, string) error {
			return rbac.ErrNotFound
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodPost, "/v1/roles/ghost/permissions", map[string]any{"permission": "llm:use"}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAssignRoleEndpoint(t *testing.T) {
	var gotScope rbac.Scope
	store := &stubStore{
		upsertAssignmentFn: func(_ context.Context, userID, roleName string, scope rbac.Scope, _ *time.Time) error {
			if userID != "user-1" || roleName != "viewer" {
				t.Fatalf("unexpected args: %s %s", userID, roleName)
			}
			gotScope = scope
			return nil
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodPost, "/v1/users/user-1/assignments", map[string]any{
		"role":  "viewer",
		"scope": "org-x",
	}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if org, ok := gotScope.Org(); !ok || org != "org-x" {
		t.Fatalf("unexpected scope forwarded: %v", gotScope)
	}
}

func TestAssignGlobalRole(t *testing.T) {
	var gotScope rbac.Scope
	store := &stubStore{
		upsertAssignmentFn: func(_ context.Context, _, _ string, scope rbac.Scope, _ *time.Time) error {
			gotScope = scope
			return nil
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodPost, "/v1/users/user-1/assignments", map[string]any{
		"role":  "super-admin",
		"scope": "*",
	}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if !gotScope.IsGlobal() {
		t.Fatalf("expected global scope, got %v", gotScope)
	}
}

func TestAssignRoleMissingScope(t *testing.T) {
	handler := newTestAPI(t, &stubStore{})
	rr := doJSON(t, handler, http.MethodPost, "/v1/users/user-1/assignments", map[string]any{"role": "viewer"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRevokeRoleEndpoint(t *testing.T) {
	revoked := false
	store := &stubStore{
		revokeAssignmentFn: func(_ context.Context, userID, roleName string, scope rbac.Scope) error {
			if userID != "user-1" || roleName != "viewer" || !scope.IsGlobal() {
				t.Fatalf("unexpected args: %s %s %v", userID, roleName, scope)
			}
			revoked = true
			return nil
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodDelete, "/v1/users/user-1/assignments", map[string]any{
		"role":  "viewer",
		"scope": "*",
	}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if !revoked {
		t.Fatal("revoke did not reach the store")
	}
}

func TestCompactEndpoint(t *testing.T) {
	store := &stubStore{
		compactFn: func(_ context.Context, roleName string, _ time.Time) (int64, error) {
			if roleName != "super-admin" {
				t.Fatalf("unexpected role: %s", roleName)
			}
			return 2, nil
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodPost, "/v1/roles/super-admin/compact", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Role    string `json:"role"`
		Removed int64  `json:"removed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Removed != 2 {
		t.Fatalf("expected 2 removed, got %d", payload.Removed)
	}
}

func TestListAssignmentsEndpoint(t *testing.T) {
	scope, err := rbac.OrgScope("org-x")
	if err != nil {
		t.Fatalf("OrgScope: %v", err)
	}
	store := &stubStore{
		listAssignmentsFn: func(_ context.Context, userID string, filter rbac.ScopeFilter, _ time.Time) ([]rbac.Assignment, error) {
			if userID != "user-1" || !filter.Any() {
				t.Fatalf("unexpected args: %s %v", userID, filter)
			}
			return []rbac.Assignment{
				{UserID: "user-1", RoleID: "role-v", RoleName: "viewer", Scope: scope, AssignedAt: time.Now().UTC()},
			}, nil
		},
	}
	handler := newTestAPI(t, store)

	rr := doJSON(t, handler, http.MethodGet, "/v1/users/user-1/assignments", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var assignments []rbac.Assignment
	if err := json.Unmarshal(rr.Body.Bytes(), &assignments); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(assignments) != 1 || assignments[0].RoleName != "viewer" {
		t.Fatalf("unexpected assignments: %v", assignments)
	}
	if org, ok := assignments[0].Scope.Org(); !ok || org != "org-x" {
		t.Fatalf("scope did not round-trip: %v", assignments[0].Scope)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestAPI(t, &stubStore{})
	rr := doJSON(t, handler, http.MethodPut, "/v1/roles/viewer/permissions", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") == "" {
		t.Fatal("expected Allow header")
	}
}
