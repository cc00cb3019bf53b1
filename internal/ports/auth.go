// Package ports defines interfaces (hexagonal ports) for identity, role and session behavior.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"
	"time"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
)

// BeginInput carries inputs for initiating a federated sign-in.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
// Error carries the IdP's error parameter (for example access_denied when the user closed the consent screen).
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
	Error string
}

// CredentialsInput carries an email/password sign-in attempt.
type CredentialsInput struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=6,max=128"`
}

// SignInResult is the outcome of a successful sign-in: the normalized identity
// plus the provider token later exchanged for a backend session.
type SignInResult struct {
	Identity domainauth.Identity
	Token    string
}

// IdentityProvider authenticates principals against an IdP.
type IdentityProvider interface {
	// Begin starts the federated flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the federated flow, verifying state and nonce.
	Exchange(ctx context.Context, in ExchangeInput) (SignInResult, error)

	// SignInWithCredentials authenticates an email/password pair.
	SignInWithCredentials(ctx context.Context, in CredentialsInput) (SignInResult, error)
}

// SessionStore persists and retrieves browser sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// RoleSource fetches the role bound to an identity key from the backend.
type RoleSource interface {
	FetchRole(ctx context.Context, key string) (domainauth.Role, error)
}

// RoleEntry is a cached role assignment.
type RoleEntry struct {
	Role      domainauth.Role `json:"role"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// RoleCache is a shared role cache tier (for example Redis) keyed by identity key.
// Get returns found=false on a miss.
type RoleCache interface {
	Get(ctx context.Context, key string) (entry RoleEntry, found bool, err error)
	Set(ctx context.Context, key string, entry RoleEntry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SessionCredential is what the backend receives at POST /jwt.
type SessionCredential struct {
	Token string
	Email string
}

// SessionBackend establishes and revokes the backend session for one portal.
type SessionBackend interface {
	Establish(ctx context.Context, cred SessionCredential) error
	Revoke(ctx context.Context) error
}

// Profile is the backend user record created on first sign-in.
type Profile struct {
	Name  string          `json:"name"`
	Email string          `json:"email" validate:"required,email"`
	Photo string          `json:"photo,omitempty"`
	Role  domainauth.Role `json:"role" validate:"required,oneof=user member admin"`
}

// ProfileDirectory checks for and creates backend profile records.
type ProfileDirectory interface {
	ProfileExists(ctx context.Context, email string) (bool, error)
	CreateProfile(ctx context.Context, p Profile) error
}
