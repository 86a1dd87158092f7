// Package rbac classifies (caller, resource, action) triples. It never
// mutates state; handlers translate its decisions into HTTP statuses.
package rbac

import "fmt"

type Role string

const (
	RoleMember Role = "user"
	RoleAdmin  Role = "admin"
)

// ParseRole rejects unrecognized role values at the boundary.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleMember, RoleAdmin:
		return Role(value), nil
	default:
		return "", fmt.Errorf("invalid role %q", value)
	}
}

// Decision is the outcome of an access check.
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
	// NotFound hides the existence of a private resource from non-owners.
	NotFound
)

// Caller is the identity derived from a request: either anonymous or the
// verified subject of a bearer token. The zero value is anonymous.
type Caller struct {
	UserID string
	Role   Role

	authenticated bool
}

func Anonymous() Caller {
	return Caller{}
}

func Identified(userID string, role Role) Caller {
	return Caller{UserID: userID, Role: role, authenticated: true}
}

func (c Caller) Authenticated() bool {
	return c.authenticated
}

func (c Caller) IsAdmin() bool {
	return c.authenticated && c.Role == RoleAdmin
}

// CanView allows reads of public resources by anyone and of private resources
// by their owner only. Denied private reads answer NotFound, never Forbidden:
// the same policy the store applies to mutations via its id+owner filter.
func CanView(caller Caller, ownerID string, isPublic bool) Decision {
	if isPublic {
		return Allow
	}
	if caller.authenticated && caller.UserID == ownerID {
		return Allow
	}
	return NotFound
}

// CanMutate allows updates and deletes by the owner only. Visibility is
// irrelevant to mutation rights.
func CanMutate(caller Caller, ownerID string) Decision {
	if !caller.authenticated {
		return Unauthenticated
	}
	if caller.UserID == ownerID {
		return Allow
	}
	return NotFound
}

// RequireAdmin gates admin-only endpoints. A valid non-admin caller is
// Forbidden, which is distinct from Unauthenticated.
func RequireAdmin(caller Caller) Decision {
	if !caller.authenticated {
		return Unauthenticated
	}
	if caller.Role != RoleAdmin {
		return Forbidden
	}
	return Allow
}
