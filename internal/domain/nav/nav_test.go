package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
)

func snap(email string) domainauth.IdentitySnapshot {
	return domainauth.IdentitySnapshot{Status: domainauth.StatusAuthenticated, Identity: &domainauth.Identity{Email: email}}
}

func TestBuild_PerRole(t *testing.T) {
	tests := []struct {
		role   domainauth.Role
		labels []string
	}{
		{domainauth.RoleUser, []string{"My Profile", "Announcements"}},
		{domainauth.RoleMember, []string{"My Profile", "Announcements", "Make Payment", "Payment History"}},
		{domainauth.RoleAdmin, []string{"Admin Profile", "Make Announcement", "Manage Members", "Manage Coupons", "Agreement Requests"}},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			got := Build(snap("a@x.com"), domainauth.RoleState{Status: domainauth.RoleStatusResolved, Key: "a@x.com", Role: tt.role})
			labels := make([]string, 0, len(got))
			for _, e := range got {
				labels = append(labels, e.Label)
			}
			assert.Equal(t, tt.labels, labels)
		})
	}
}

func TestBuild_EmptyUntilResolvedForIdentity(t *testing.T) {
	id := snap("a@x.com")
	assert.Nil(t, Build(id, domainauth.UnresolvedRole()))
	assert.Nil(t, Build(id, domainauth.RoleState{Status: domainauth.RoleStatusLoading, Key: "a@x.com"}))
	assert.Nil(t, Build(id, domainauth.RoleState{Status: domainauth.RoleStatusError, Key: "a@x.com"}))
	assert.Nil(t, Build(id, domainauth.RoleState{Status: domainauth.RoleStatusResolved, Key: "b@x.com", Role: domainauth.RoleAdmin}))
	assert.Nil(t, Build(domainauth.IdentitySnapshot{Status: domainauth.StatusAnonymous},
		domainauth.RoleState{Status: domainauth.RoleStatusResolved, Key: "a@x.com", Role: domainauth.RoleAdmin}))
}

func TestBuild_ReturnsFreshSlice(t *testing.T) {
	st := domainauth.RoleState{Status: domainauth.RoleStatusResolved, Key: "a@x.com", Role: domainauth.RoleUser}
	first := Build(snap("a@x.com"), st)
	require.NotEmpty(t, first)
	first[0].Label = "mutated"

	second := Build(snap("a@x.com"), st)
	assert.Equal(t, "My Profile", second[0].Label)
}

func TestPages(t *testing.T) {
	pages := Pages()
	assert.Contains(t, pages, PageAgreementRequest)
	assert.Contains(t, pages, PagePaymentHistory)
	assert.Contains(t, pages, PageManageMembers)
	assert.Len(t, pages, 9)
}

func TestPageGuard_MenuEntriesAreReachable(t *testing.T) {
	for _, r := range []domainauth.Role{domainauth.RoleUser, domainauth.RoleMember, domainauth.RoleAdmin} {
		for _, e := range ForRole(r) {
			slug := e.Path[len("/dashboard/"):]
			g, ok := PageGuard(slug)
			require.True(t, ok, slug)
			assert.True(t, g.Accepts(r), "%s menu links %s", r, slug)
		}
	}
	for _, slug := range Pages() {
		_, ok := PageGuard(slug)
		assert.True(t, ok, slug)
	}
	_, ok := PageGuard("unknown")
	assert.False(t, ok)
}
