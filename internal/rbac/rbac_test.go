package rbac

import "testing"

func TestParseRole(t *testing.T) {
	if _, err := ParseRole("user"); err != nil {
		t.Fatalf("ParseRole(user) error = %v", err)
	}
	if _, err := ParseRole("admin"); err != nil {
		t.Fatalf("ParseRole(admin) error = %v", err)
	}
	for _, bad := range []string{"", "root", "administrator", "USER"} {
		if _, err := ParseRole(bad); err == nil {
			t.Fatalf("ParseRole(%q) expected error", bad)
		}
	}
}

func TestCanView(t *testing.T) {
	owner := Identified("u1", RoleMember)
	other := Identified("u2", RoleMember)

	cases := []struct {
		name     string
		caller   Caller
		ownerID  string
		isPublic bool
		want     Decision
	}{
		{"anonymous public", Anonymous(), "u1", true, Allow},
		{"anonymous private", Anonymous(), "u1", false, NotFound},
		{"owner private", owner, "u1", false, Allow},
		{"owner public", owner, "u1", true, Allow},
		{"non-owner private", other, "u1", false, NotFound},
		{"non-owner public", other, "u1", true, Allow},
	}
	for _, tc := range cases {
		if got := CanView(tc.caller, tc.ownerID, tc.isPublic); got != tc.want {
			t.Errorf("%s: CanView() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanMutate(t *testing.T) {
	owner := Identified("u1", RoleMember)
	other := Identified("u2", RoleMember)
	admin := Identified("u3", RoleAdmin)

	if got := CanMutate(Anonymous(), "u1"); got != Unauthenticated {
		t.Fatalf("anonymous: CanMutate() = %v, want Unauthenticated", got)
	}
	if got := CanMutate(owner, "u1"); got != Allow {
		t.Fatalf("owner: CanMutate() = %v, want Allow", got)
	}
	// A public map is still only writable by its owner; even admins do not
	// get mutation rights over other users' maps.
	if got := CanMutate(other, "u1"); got != NotFound {
		t.Fatalf("non-owner: CanMutate() = %v, want NotFound", got)
	}
	if got := CanMutate(admin, "u1"); got != NotFound {
		t.Fatalf("admin non-owner: CanMutate() = %v, want NotFound", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	if got := RequireAdmin(Anonymous()); got != Unauthenticated {
		t.Fatalf("anonymous: RequireAdmin() = %v, want Unauthenticated", got)
	}
	if got := RequireAdmin(Identified("u1", RoleMember)); got != Forbidden {
		t.Fatalf("member: RequireAdmin() = %v, want Forbidden", got)
	}
	if got := RequireAdmin(Identified("u2", RoleAdmin)); got != Allow {
		t.Fatalf("admin: RequireAdmin() = %v, want Allow", got)
	}
}
