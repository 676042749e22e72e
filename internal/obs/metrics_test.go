package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                             "/",
		"/metrics":                     "/metrics",
		"/v1/roles":                    "/v1/roles",
		"/v1/roles/viewer/permissions": "/v1/roles/:role/permissions",
		"/v1/roles/super-admin/compact":                 "/v1/roles/:role/compact",
		"/v1/users/u-1/assignments":                     "/v1/users/:id/assignments",
		"/v1/organizations/org-x/roster":                "/v1/organizations/:org/roster",
		"/v1/organizations/org-x/roster?page=2":         "/v1/organizations/:org/roster",
		"/v1/organizations/org-x/users/u-1/permissions": "/v1/organizations/:org/users/:id/permissions",
		"/v1/organizations/org-x/extra":                 "/v1/organizations/org-x/extra",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
