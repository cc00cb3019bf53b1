// Package nav builds the dashboard navigation menu from a resolved role.
package nav

import (
	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/guard"
)

// Entry is one navigation link in the dashboard shell.
type Entry struct {
	Path  string `json:"path"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Page slugs under /dashboard/.
const (
	PageProfile          = "profile"
	PageAnnouncements    = "announcements"
	PageMakePayment      = "make-payment"
	PagePaymentHistory   = "payment-history"
	PageAdminProfile     = "admin-profile"
	PageMakeAnnouncement = "make-announcement"
	PageManageCoupons    = "manage-coupons"
	PageManageMembers    = "manage-members"
	PageAgreementRequest = "agreement-requests"
)

func entry(page, label, icon string) Entry {
	return Entry{Path: "/dashboard/" + page, Label: label, Icon: icon}
}

var table = map[domainauth.Role][]Entry{
	domainauth.RoleUser: {
		entry(PageProfile, "My Profile", "user"),
		entry(PageAnnouncements, "Announcements", "megaphone"),
	},
	domainauth.RoleMember: {
		entry(PageProfile, "My Profile", "user"),
		entry(PageAnnouncements, "Announcements", "megaphone"),
		entry(PageMakePayment, "Make Payment", "credit-card"),
		entry(PagePaymentHistory, "Payment History", "receipt"),
	},
	domainauth.RoleAdmin: {
		entry(PageAdminProfile, "Admin Profile", "shield"),
		entry(PageMakeAnnouncement, "Make Announcement", "edit"),
		entry(PageManageMembers, "Manage Members", "users"),
		entry(PageManageCoupons, "Manage Coupons", "ticket"),
		entry(PageAgreementRequest, "Agreement Requests", "file-text"),
	},
}

// pageGuards decides who may open each dashboard page. Every menu entry must be
// reachable by the role whose menu lists it.
var pageGuards = map[string]guard.Guard{
	PageProfile:          guard.RequireUserOrMember,
	PageAnnouncements:    guard.RequireAnyRole,
	PageMakePayment:      guard.RequireMember,
	PagePaymentHistory:   guard.RequireMember,
	PageAdminProfile:     guard.RequireAdmin,
	PageMakeAnnouncement: guard.RequireAdmin,
	PageManageCoupons:    guard.RequireAdmin,
	PageManageMembers:    guard.RequireAdmin,
	PageAgreementRequest: guard.RequireAdmin,
}

// PageGuard returns the guard protecting a dashboard page slug.
func PageGuard(page string) (guard.Guard, bool) {
	g, ok := pageGuards[page]
	return g, ok
}

// Build returns a freshly allocated menu for the role bound to the current identity.
// It returns nil unless the identity is authenticated and the role is resolved for that
// identity's key, so a pending or previous role never leaks links.
func Build(identity domainauth.IdentitySnapshot, role domainauth.RoleState) []Entry {
	key := identity.Key()
	if key == "" || !role.For(key) {
		return nil
	}
	r, ok := role.Resolved()
	if !ok {
		return nil
	}
	src := table[r]
	if len(src) == 0 {
		return nil
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// ForRole returns the static menu for a role, ignoring identity state.
// portal-admin guards -menus prints it.
func ForRole(r domainauth.Role) []Entry {
	src := table[r]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Pages returns every page slug that appears in any menu.
func Pages() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range []domainauth.Role{domainauth.RoleUser, domainauth.RoleMember, domainauth.RoleAdmin} {
		for _, e := range table[r] {
			slug := e.Path[len("/dashboard/"):]
			if !seen[slug] {
				seen[slug] = true
				out = append(out, slug)
			}
		}
	}
	return out
}
