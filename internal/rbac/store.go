package rbac

import (
	"context"
	"time"
)

// ScopeFilter narrows an assignment listing. The zero value matches every
// scope; WithinOrg matches assignments for one organization plus globals.
type ScopeFilter struct {
	org string
}

func AnyScope() ScopeFilter { return ScopeFilter{} }

func WithinOrg(slug string) ScopeFilter { return ScopeFilter{org: slug} }

// Any reports whether the filter matches every scope.
func (f ScopeFilter) Any() bool { return f.org == "" }

// Org returns the organization slug the filter is limited to.
func (f ScopeFilter) Org() string { return f.org }

// Store describes persistence operations required by the access-control
// subsystem. All writes are idempotent: re-applying an identical grant or
// assignment converges to one logical row, and removing something absent is
// a no-op. Reads evaluate expiry against the caller-supplied now so one
// resolution sees a single consistent instant.
type Store interface {
	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)

	EnsureRole(ctx context.Context, name, displayName string, builtin bool) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RolePermissions(ctx context.Context, roleName string) ([]string, error)
	GrantPermission(ctx context.Context, roleName, permissionName string) error

	UpsertAssignment(ctx context.Context, userID, roleName string, scope Scope, expiresAt *time.Time) error
	RevokeAssignment(ctx context.Context, userID, roleName string, scope Scope) error
	ListAssignments(ctx context.Context, userID string, filter ScopeFilter, now time.Time) ([]Assignment, error)

	ResolvePermissions(ctx context.Context, userID, orgSlug string, now time.Time) ([]string, error)
	OrganizationRoster(ctx context.Context, orgSlug string, now time.Time) ([]RosterEntry, error)
	CompactAssignments(ctx context.Context, roleName string, now time.Time) (int64, error)
}
