package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"orchflow.org/access/internal/ids"
	"orchflow.org/access/internal/rbac"
)

var _ rbac.Store = (*Store)(nil)

// rowQuerier is satisfied by both *sql.DB and *sql.Tx so name lookups work
// inside and outside transactions.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []rbac.Permission) error {
	if s.db == nil {
		return errNoDatabase
	}
	if len(perms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, perm := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, description)
			values ($1, $2, $3)
			on conflict (name) do nothing
		`, ids.New(), perm.Name, perm.Description); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, ''), created_at
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) EnsureRole(ctx context.Context, name, displayName string, builtin bool) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errNoDatabase
	}
	var role rbac.Role
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, display_name, is_builtin)
		values ($1, $2, $3, $4)
		on conflict (name) do update
		set display_name = excluded.display_name, updated_at = now()
		returning id, name, display_name, is_builtin, created_at, updated_at
	`, ids.New(), name, displayName, builtin)
	if err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Builtin, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errNoDatabase
	}
	return roleByName(ctx, s.db, name)
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, display_name, is_builtin, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Builtin, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	role, err := roleByName(ctx, s.db, roleName)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.name
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, role.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// GrantPermission links a permission to a role. An existing link is left
// untouched; a missing role or permission aborts before any mutation.
func (s *Store) GrantPermission(ctx context.Context, roleName, permissionName string) error {
	if s.db == nil {
		return errNoDatabase
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	role, err := roleByName(ctx, tx, roleName)
	if err != nil {
		return err
	}
	var permID string
	if err := tx.QueryRowContext(ctx, `select id from permissions where name = $1`, permissionName).Scan(&permID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, permissionName)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		on conflict (role_id, permission_id) do nothing
	`, role.ID, permID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertAssignment converges concurrent writers to one logical row per
// (user, role, scope); the expiry is last-write-wins.
func (s *Store) UpsertAssignment(ctx context.Context, userID, roleName string, scope rbac.Scope, expiresAt *time.Time) error {
	if s.db == nil {
		return errNoDatabase
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	role, err := roleByName(ctx, tx, roleName)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into role_assignments (user_id, role_id, scope, assigned_at, expires_at)
		values ($1, $2, $3, now(), $4)
		on conflict (user_id, role_id, scope) do update
		set expires_at = excluded.expires_at
	`, userID, role.ID, scope.Encode(), nullTime(expiresAt)); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role %s", rbac.ErrNotFound, roleName)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) RevokeAssignment(ctx context.Context, userID, roleName string, scope rbac.Scope) error {
	if s.db == nil {
		return errNoDatabase
	}
	role, err := roleByName(ctx, s.db, roleName)
	if err != nil {
		return err
	}
	// Deleting an absent binding is a successful no-op.
	_, err = s.db.ExecContext(ctx, `
		delete from role_assignments
		where user_id = $1 and role_id = $2 and scope = $3
	`, userID, role.ID, scope.Encode())
	return err
}

func (s *Store) ListAssignments(ctx context.Context, userID string, filter rbac.ScopeFilter, now time.Time) ([]rbac.Assignment, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	query := `
		select ra.user_id, ra.role_id, r.name, ra.scope, ra.assigned_at, ra.expires_at
		from role_assignments ra
		join roles r on r.id = ra.role_id
		where ra.user_id = $1
		  and (ra.expires_at is null or ra.expires_at > $2)`
	args := []any{userID, now}
	if !filter.Any() {
		query += `
		  and ra.scope in ($3, '*')`
		args = append(args, filter.Org())
	}
	query += `
		order by r.name, ra.scope`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []rbac.Assignment
	for rows.Next() {
		var (
			a        rbac.Assignment
			rawScope string
			expires  sql.NullTime
		)
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.RoleName, &rawScope, &a.AssignedAt, &expires); err != nil {
			return nil, err
		}
		if a.Scope, err = rbac.ParseScope(rawScope); err != nil {
			return nil, err
		}
		a.ExpiresAt = timePtr(expires)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// ResolvePermissions unions the permission names of every role the user
// holds in the organization or globally, active at now. Set semantics come
// from the distinct; a role granted through both scopes counts once.
func (s *Store) ResolvePermissions(ctx context.Context, userID, orgSlug string, now time.Time) ([]string, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.name
		from role_assignments ra
		join role_permissions rp on rp.role_id = ra.role_id
		join permissions p on p.id = rp.permission_id
		where ra.user_id = $1
		  and ra.scope in ($2, '*')
		  and (ra.expires_at is null or ra.expires_at > $3)
	`, userID, orgSlug, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// OrganizationRoster returns active bindings visible in the organization,
// joined against the mirrored user directory, ordered by email then role
// name. The join can surface the same (user, role) twice when a binding
// exists both globally and in the organization; dedupRoster collapses those
// with the global row winning.
func (s *Store) OrganizationRoster(ctx context.Context, orgSlug string, now time.Time) ([]rbac.RosterEntry, error) {
	if s.db == nil {
		return nil, errNoDatabase
	}
	rows, err := s.db.QueryContext(ctx, `
		select ra.user_id, coalesce(u.email, ''), coalesce(u.display_name, ''),
		       r.id, r.name, r.display_name,
		       ra.scope, ra.assigned_at, ra.expires_at
		from role_assignments ra
		join roles r on r.id = ra.role_id
		left join users u on u.id = ra.user_id
		where ra.scope in ($1, '*')
		  and (ra.expires_at is null or ra.expires_at > $2)
		order by coalesce(u.email, ra.user_id), r.name
	`, orgSlug, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []rbac.RosterEntry
	for rows.Next() {
		var (
			e        rbac.RosterEntry
			rawScope string
			expires  sql.NullTime
		)
		if err := rows.Scan(&e.UserID, &e.Email, &e.DisplayName, &e.RoleID, &e.RoleName, &e.RoleDisplayName, &rawScope, &e.AssignedAt, &expires); err != nil {
			return nil, err
		}
		e.Global = rawScope == rbac.Wildcard
		e.ExpiresAt = timePtr(expires)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dedupRoster(entries), nil
}

// dedupRoster keeps one entry per (user, role). Replacement happens in
// place, so the email/role-name ordering of the first occurrence survives.
func dedupRoster(entries []rbac.RosterEntry) []rbac.RosterEntry {
	if len(entries) == 0 {
		return entries
	}
	type key struct{ user, role string }
	seen := make(map[key]int, len(entries))
	result := entries[:0]
	for _, e := range entries {
		k := key{user: e.UserID, role: e.RoleID}
		if idx, ok := seen[k]; ok {
			if e.Global && !result[idx].Global {
				result[idx] = e
			}
			continue
		}
		seen[k] = len(result)
		result = append(result, e)
	}
	return result
}

// CompactAssignments removes organization-scoped assignments of the role
// shadowed by an active global assignment for the same user. The read of
// who holds the role globally and the delete share one transaction, so a
// concurrent revoke of the global grant cannot leave a stale-read deletion.
func (s *Store) CompactAssignments(ctx context.Context, roleName string, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDatabase
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	role, err := roleByName(ctx, tx, roleName)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		delete from role_assignments sa
		where sa.role_id = $1
		  and sa.scope <> '*'
		  and sa.user_id in (
			select ga.user_id
			from role_assignments ga
			where ga.role_id = $1
			  and ga.scope = '*'
			  and (ga.expires_at is null or ga.expires_at > $2)
		  )
	`, role.ID, now)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

func roleByName(ctx context.Context, q rowQuerier, name string) (rbac.Role, error) {
	var role rbac.Role
	err := q.QueryRowContext(ctx, `
		select id, name, display_name, is_builtin, created_at, updated_at
		from roles
		where name = $1
	`, name).Scan(&role.ID, &role.Name, &role.DisplayName, &role.Builtin, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, fmt.Errorf("%w: role %s", rbac.ErrNotFound, name)
	}
	if err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}
