package rbac

import "time"

// Permission is a named capability, e.g. "llm:use".
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role groups permissions under a stable name.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Builtin     bool      `json:"is_builtin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignment binds a user to a role within a scope. A nil ExpiresAt means
// the assignment never expires.
type Assignment struct {
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	RoleName   string     `json:"role_name"`
	Scope      Scope      `json:"scope"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the assignment is in force at the given instant.
// Expired assignments stay in the store until a purge sweep; every read
// filters on this rule instead.
func (a Assignment) ActiveAt(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// RosterEntry is one row of an organization roster: a distinct (user, role)
// pair with directory details attached. Global is true when the binding
// comes from a wildcard assignment rather than an organization-scoped one.
type RosterEntry struct {
	UserID          string     `json:"user_id"`
	Email           string     `json:"email,omitempty"`
	DisplayName     string     `json:"display_name,omitempty"`
	RoleID          string     `json:"role_id"`
	RoleName        string     `json:"role_name"`
	RoleDisplayName string     `json:"role_display_name"`
	Global          bool       `json:"is_global"`
	AssignedAt      time.Time  `json:"assigned_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}
