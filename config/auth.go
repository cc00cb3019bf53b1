package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// PasswordGrant lets the sign-in form exchange email and password at the token endpoint.
	PasswordGrant bool `env:"PASSWORD_GRANT" envDefault:"false"`
}

// IsComplete reports whether every field the OIDC provider requires is present.
func (o OAuthConfig) IsComplete() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.RedirectURL != "" && o.DiscoveryURL != ""
}

// DevAuthConfig controls the local identity provider.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	// Users is a comma-separated list of "email:password[:Display Name]".
	// The first user is returned by the federated flow.
	Users string `env:"USERS" envDefault:"admin@towertrack.local:password:Building Admin,resident@towertrack.local:password:Resident"`
	// SigningKey signs the HS256 tokens exchanged with the backend.
	SigningKey      string        `env:"SIGNING_KEY"      envDefault:"towertrack-development-signing-key"`
	Issuer          string        `env:"ISSUER"           envDefault:"towertrack-devauth"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// SuperAdmins are emails that reach admin pages when role lookup fails.
	SuperAdmins []string `env:"AUTH_SUPER_ADMINS" envSeparator:","`

	// SessionTTL applies when the provider does not report a token expiry.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"24h"`
}

// Sanitize trims list entries and enforces a positive session lifetime.
func (a *AuthConfig) Sanitize() {
	admins := a.SuperAdmins[:0]
	for _, email := range a.SuperAdmins {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins = append(admins, email)
		}
	}
	a.SuperAdmins = admins
	if a.SessionTTL <= 0 {
		a.SessionTTL = 24 * time.Hour
	}
	if a.DevAuth.SessionDuration <= 0 {
		a.DevAuth.SessionDuration = 8 * time.Hour
	}
	a.OAuth.DiscoveryURL = strings.TrimSpace(a.OAuth.DiscoveryURL)
}
