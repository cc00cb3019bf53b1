// Package auth contains domain-level types for identity, roles and browser sessions.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role represents an authorization tier bound to an identity.
// The set is closed; unresolved and failed lookups are tracked by RoleStatus,
// never by a Role value.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleMember    Role = "member"
	RoleAdmin     Role = "admin"
)

// ParseRole converts a backend role value into a Role.
// Only roles the backend may assign are accepted; anonymous is client-side only.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleMember, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Assignable reports whether r is a role the backend can bind to an identity.
func (r Role) Assignable() bool {
	switch r {
	case RoleUser, RoleMember, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID        string    `json:"user_id"` // provider subject
	Email         string    `json:"email"`   // stable identity key
	DisplayName   string    `json:"display_name"`
	AvatarURL     string    `json:"avatar_url"`
	EmailVerified bool      `json:"email_verified"`
	ExpiresAt     time.Time `json:"expires_at"` // absolute expiry from IdP token
}

// Key returns the normalized identity key used for role lookups and caching.
func (i Identity) Key() string { return NormalizeKey(i.Email) }

// NormalizeKey lower-cases and trims an email so lookups are case-insensitive.
func NormalizeKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// AuthStatus is the discriminant of IdentitySnapshot.
type AuthStatus string

const (
	StatusInitializing  AuthStatus = "initializing"
	StatusAuthenticated AuthStatus = "authenticated"
	StatusAnonymous     AuthStatus = "anonymous"
)

// IdentitySnapshot is an immutable view of the identity state.
// Generation increases whenever the status or identity key changes; re-publishing
// the same principal keeps the generation so side effects bound to a transition
// run once.
type IdentitySnapshot struct {
	Status     AuthStatus `json:"status"`
	Identity   *Identity  `json:"identity,omitempty"`
	Generation uint64     `json:"generation"`
}

// IsInitializing reports whether the provider has not delivered its first state yet.
func (s IdentitySnapshot) IsInitializing() bool { return s.Status == StatusInitializing }

// IsAuthenticated reports whether a principal is present.
func (s IdentitySnapshot) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil
}

// Key returns the identity key, or "" when no principal is present.
func (s IdentitySnapshot) Key() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Identity.Key()
}

// RoleStatus tracks where a role lookup stands for the current identity.
type RoleStatus string

const (
	RoleStatusUnresolved RoleStatus = "unresolved"
	RoleStatusLoading    RoleStatus = "loading"
	RoleStatusResolved   RoleStatus = "resolved"
	RoleStatusError      RoleStatus = "error"
)

// RoleState is an immutable view of the role assignment for one identity key.
// Role is only meaningful when Status is RoleStatusResolved.
type RoleState struct {
	Status    RoleStatus `json:"status"`
	Key       string     `json:"key,omitempty"`
	Role      Role       `json:"role,omitempty"`
	FetchedAt time.Time  `json:"fetched_at,omitzero"`
	Err       error      `json:"-"`
}

// UnresolvedRole is the zero role state.
func UnresolvedRole() RoleState { return RoleState{Status: RoleStatusUnresolved} }

// IsLoading reports whether a lookup is in flight.
func (s RoleState) IsLoading() bool { return s.Status == RoleStatusLoading }

// IsError reports whether the last lookup failed.
func (s RoleState) IsError() bool { return s.Status == RoleStatusError }

// Resolved returns the role when the lookup completed successfully.
func (s RoleState) Resolved() (Role, bool) {
	if s.Status != RoleStatusResolved {
		return "", false
	}
	return s.Role, true
}

// For reports whether the state belongs to the given identity key.
func (s RoleState) For(key string) bool { return key != "" && s.Key == key }

// Session is the server-side record persisted for a browser session.
// ID is an opaque session identifier carried in the portal cookie.
type Session struct {
	ID            string    `json:"id"`
	Identity      Identity  `json:"identity"`
	ProviderToken string    `json:"provider_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) }
