package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Service validates input and delegates to the configured Store. It is the
// single entry point the HTTP layer and tooling use for access-control
// state.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the resolution clock. Tests use it to pin expiry
// evaluation to a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	s := &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bootstrap installs the builtin permission and role catalog. Safe to run
// on every startup; existing rows are left untouched.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.store.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	for _, seed := range BuiltinRoles {
		if _, err := s.store.EnsureRole(ctx, seed.Name, seed.DisplayName, true); err != nil {
			return fmt.Errorf("ensure role %s: %w", seed.Name, err)
		}
		for _, perm := range seed.Grants {
			if err := s.store.GrantPermission(ctx, seed.Name, perm); err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm, seed.Name, err)
			}
		}
	}
	return nil
}

// ResolvePermissions computes the de-duplicated set of permission names the
// user holds in the given organization, through organization-scoped and
// global assignments active right now. An unknown user or organization
// resolves to an empty set, not an error.
func (s *Service) ResolvePermissions(ctx context.Context, userID, orgSlug string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	org, err := concreteOrg(orgSlug)
	if err != nil {
		return nil, err
	}
	perms, err := s.store.ResolvePermissions(ctx, userID, org, s.now())
	if err != nil {
		return nil, err
	}
	sort.Strings(perms)
	return perms, nil
}

// OrganizationRoster lists the distinct (user, role) bindings visible in an
// organization, ordered by email then role name. When a user holds the same
// role both globally and in the organization, the global row wins.
func (s *Service) OrganizationRoster(ctx context.Context, orgSlug string) ([]RosterEntry, error) {
	org, err := concreteOrg(orgSlug)
	if err != nil {
		return nil, err
	}
	return s.store.OrganizationRoster(ctx, org, s.now())
}

// GrantPermission adds a permission to a role's grant set. Granting a
// permission the role already holds is a successful no-op.
func (s *Service) GrantPermission(ctx context.Context, roleName, permissionName string) error {
	roleName = strings.TrimSpace(roleName)
	permissionName = strings.TrimSpace(permissionName)
	if roleName == "" || permissionName == "" {
		return fmt.Errorf("%w: role and permission names are required", ErrInvalidInput)
	}
	return s.store.GrantPermission(ctx, roleName, permissionName)
}

// AssignRole binds a user to a role within a scope. Re-applying an
// identical assignment updates the expiry instead of creating a second row.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string, scope Scope, expiresAt *time.Time) error {
	userID = strings.TrimSpace(userID)
	roleName = strings.TrimSpace(roleName)
	if userID == "" || roleName == "" {
		return fmt.Errorf("%w: user_id and role name are required", ErrInvalidInput)
	}
	if scope.IsZero() {
		return fmt.Errorf("%w: scope is required", ErrInvalidInput)
	}
	return s.store.UpsertAssignment(ctx, userID, roleName, scope, expiresAt)
}

// RevokeRole removes a binding. Revoking an assignment that does not exist
// is a successful no-op; an unknown role name is still reported.
func (s *Service) RevokeRole(ctx context.Context, userID, roleName string, scope Scope) error {
	userID = strings.TrimSpace(userID)
	roleName = strings.TrimSpace(roleName)
	if userID == "" || roleName == "" {
		return fmt.Errorf("%w: user_id and role name are required", ErrInvalidInput)
	}
	if scope.IsZero() {
		return fmt.Errorf("%w: scope is required", ErrInvalidInput)
	}
	return s.store.RevokeAssignment(ctx, userID, roleName, scope)
}

// ListAssignments returns the user's assignments active right now, across
// every scope.
func (s *Service) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.ListAssignments(ctx, userID, AnyScope(), s.now())
}

// CompactAssignments deletes organization-scoped assignments of the role
// that are shadowed by an active global assignment for the same user. It
// returns the number of rows removed and is idempotent.
func (s *Service) CompactAssignments(ctx context.Context, roleName string) (int64, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return 0, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CompactAssignments(ctx, roleName, s.now())
}

// ListRoles returns the role catalog.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// RolePermissions returns the permission names granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.RolePermissions(ctx, roleName)
}

// concreteOrg validates an organization slug used as a query target.
// Callers ask about concrete organizations; "global" is a property of an
// assignment, never of a question.
func concreteOrg(slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return "", fmt.Errorf("%w: organization slug is required", ErrInvalidInput)
	}
	if slug == Wildcard {
		return "", fmt.Errorf("%w: the wildcard is not a queryable organization", ErrInvalidInput)
	}
	return slug, nil
}
