package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wildcard is the reserved storage encoding for an assignment that applies
// to every organization. It is never a valid organization slug.
const Wildcard = "*"

// Scope is the applicability domain of a role assignment: either one
// concrete organization or every organization. The zero value is invalid;
// construct scopes with GlobalScope or OrgScope.
type Scope struct {
	org    string
	global bool
}

// GlobalScope returns the scope covering every organization.
func GlobalScope() Scope {
	return Scope{global: true}
}

// OrgScope returns the scope limited to a single organization. The wildcard
// is rejected here so the sentinel can never collide with a real slug.
func OrgScope(slug string) (Scope, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Scope{}, fmt.Errorf("%w: organization slug is required", ErrInvalidInput)
	}
	if slug == Wildcard {
		return Scope{}, fmt.Errorf("%w: %q is reserved and cannot name an organization", ErrInvalidInput, Wildcard)
	}
	return Scope{org: slug}, nil
}

// ParseScope decodes the persisted scope column value.
func ParseScope(raw string) (Scope, error) {
	if strings.TrimSpace(raw) == Wildcard {
		return GlobalScope(), nil
	}
	return OrgScope(raw)
}

// IsGlobal reports whether the scope covers every organization.
func (s Scope) IsGlobal() bool { return s.global }

// IsZero reports whether the scope was never constructed.
func (s Scope) IsZero() bool { return !s.global && s.org == "" }

// Org returns the organization slug and true for a specific scope.
func (s Scope) Org() (string, bool) {
	if s.global || s.org == "" {
		return "", false
	}
	return s.org, true
}

// Encode returns the storage encoding: the wildcard for a global scope, the
// organization slug otherwise.
func (s Scope) Encode() string {
	if s.global {
		return Wildcard
	}
	return s.org
}

func (s Scope) String() string {
	if s.global {
		return "global"
	}
	return "org:" + s.org
}

func (s Scope) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("%w: zero scope", ErrInvalidInput)
	}
	return json.Marshal(s.Encode())
}

func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	scope, err := ParseScope(raw)
	if err != nil {
		return err
	}
	*s = scope
	return nil
}
