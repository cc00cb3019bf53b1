// Package guard implements the route access decision table.
//
// A Guard is a pure function of the identity snapshot, the role state and the
// guard's accepted role set. It never mutates either input and never commits to
// a deny decision while the inputs are still settling.
package guard

import (
	"slices"
	"strings"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
)

// Decision is the outcome of evaluating a guard.
type Decision int

const (
	// Pending means identity or role is still loading; render a placeholder and do not redirect.
	Pending Decision = iota
	// Allow renders the protected content.
	Allow
	// DenyToLogin redirects to the login flow, preserving the attempted path.
	DenyToLogin
	// DenyToUnauthorized redirects to the unauthorized page.
	DenyToUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case DenyToLogin:
		return "deny_to_login"
	case DenyToUnauthorized:
		return "deny_to_unauthorized"
	default:
		return "unknown"
	}
}

// Outcome carries the decision and, for DenyToLogin, the path to return to after sign-in.
type Outcome struct {
	Decision Decision
	ReturnTo string
	Reason   string
}

// Guard describes one allowed-role combination.
// A nil accepted set means any authenticated identity passes regardless of role.
type Guard struct {
	name       string
	accepts    []domainauth.Role
	breakGlass bool
}

var (
	// Private admits any authenticated identity; role is irrelevant.
	Private = Guard{name: "private"}
	// RequireUser admits the user role.
	RequireUser = Guard{name: "require_user", accepts: []domainauth.Role{domainauth.RoleUser}}
	// RequireMember admits the member role.
	RequireMember = Guard{name: "require_member", accepts: []domainauth.Role{domainauth.RoleMember}}
	// RequireAdmin admits the admin role, plus break-glass super-admins when the role lookup fails.
	RequireAdmin = Guard{name: "require_admin", accepts: []domainauth.Role{domainauth.RoleAdmin}, breakGlass: true}
	// RequireMemberOrAdmin admits members and admins.
	RequireMemberOrAdmin = Guard{
		name:    "require_member_or_admin",
		accepts: []domainauth.Role{domainauth.RoleMember, domainauth.RoleAdmin},
	}
	// RequireUserOrMember admits users and members.
	RequireUserOrMember = Guard{
		name:    "require_user_or_member",
		accepts: []domainauth.Role{domainauth.RoleUser, domainauth.RoleMember},
	}
	// RequireAnyRole admits every assignable role.
	RequireAnyRole = Guard{
		name:    "require_any_role",
		accepts: []domainauth.Role{domainauth.RoleUser, domainauth.RoleMember, domainauth.RoleAdmin},
	}
)

// All returns every predefined guard in a stable order.
func All() []Guard {
	return []Guard{
		Private,
		RequireUser,
		RequireMember,
		RequireAdmin,
		RequireMemberOrAdmin,
		RequireUserOrMember,
		RequireAnyRole,
	}
}

// ByName looks up a predefined guard.
func ByName(name string) (Guard, bool) {
	for _, g := range All() {
		if g.name == name {
			return g, true
		}
	}
	return Guard{}, false
}

// Name returns the guard's stable identifier (used for metrics and logs).
func (g Guard) Name() string { return g.name }

// RoleIrrelevant reports whether the guard admits any authenticated identity.
func (g Guard) RoleIrrelevant() bool { return g.accepts == nil }

// Accepts reports whether role is in the guard's accepted set.
func (g Guard) Accepts(role domainauth.Role) bool {
	if g.accepts == nil {
		return true
	}
	return slices.Contains(g.accepts, role)
}

// AcceptedRoles returns a copy of the accepted set (nil when role is irrelevant).
func (g Guard) AcceptedRoles() []domainauth.Role { return slices.Clone(g.accepts) }

// SuperAdmins is an exact-match allow-list of break-glass identity keys.
type SuperAdmins map[string]struct{}

// NewSuperAdmins normalizes the given emails into an allow-list.
func NewSuperAdmins(emails []string) SuperAdmins {
	set := make(SuperAdmins, len(emails))
	for _, e := range emails {
		if k := domainauth.NormalizeKey(e); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Contains reports whether key is on the allow-list.
func (s SuperAdmins) Contains(key string) bool {
	if key == "" {
		return false
	}
	_, ok := s[key]
	return ok
}

// Input groups everything a guard needs.
type Input struct {
	Identity    domainauth.IdentitySnapshot
	Role        domainauth.RoleState
	Path        string
	SuperAdmins SuperAdmins
}

// Evaluate applies the decision table:
//  1. identity initializing -> Pending
//  2. identity absent -> DenyToLogin (ReturnTo = attempted path)
//  3. role irrelevant -> Allow
//  4. role loading, unresolved, or recorded for another key -> Pending
//  5. role error -> DenyToUnauthorized (break-glass super-admins pass RequireAdmin)
//  6. role outside the accepted set -> DenyToUnauthorized
//  7. otherwise Allow
func (g Guard) Evaluate(in Input) Outcome {
	if in.Identity.IsInitializing() {
		return Outcome{Decision: Pending, Reason: "identity initializing"}
	}
	key := in.Identity.Key()
	if key == "" {
		return Outcome{Decision: DenyToLogin, ReturnTo: returnPath(in.Path), Reason: "unauthenticated"}
	}
	if g.RoleIrrelevant() {
		return Outcome{Decision: Allow}
	}

	role := in.Role
	if !role.For(key) {
		return Outcome{Decision: Pending, Reason: "role not resolved for identity"}
	}
	switch role.Status {
	case domainauth.RoleStatusLoading, domainauth.RoleStatusUnresolved:
		return Outcome{Decision: Pending, Reason: "role loading"}
	case domainauth.RoleStatusError:
		if g.breakGlass && in.SuperAdmins.Contains(key) {
			return Outcome{Decision: Allow, Reason: "break-glass super-admin"}
		}
		return Outcome{Decision: DenyToUnauthorized, Reason: "role lookup failed"}
	case domainauth.RoleStatusResolved:
		if g.Accepts(role.Role) {
			return Outcome{Decision: Allow}
		}
		return Outcome{Decision: DenyToUnauthorized, Reason: "role " + role.Role.String() + " not accepted"}
	default:
		return Outcome{Decision: DenyToUnauthorized, Reason: "unknown role status"}
	}
}

// returnPath keeps only same-origin relative paths.
func returnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return "/"
	}
	return p
}
