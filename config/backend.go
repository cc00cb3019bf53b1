package config

import (
	"fmt"
	"strings"
	"time"
)

// CredentialMode selects what is exchanged for a backend session at POST /jwt.
type CredentialMode string

const (
	// CredentialToken sends the identity provider's token.
	CredentialToken CredentialMode = "token"
	// CredentialEmail sends only the email (trusted-network backends).
	CredentialEmail CredentialMode = "email"
)

// UnmarshalText implements encoding.TextUnmarshaler for CredentialMode.
func (m *CredentialMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "token", "email":
		*m = CredentialMode(v)
		return nil
	default:
		return fmt.Errorf("invalid CredentialMode: %q (valid options: token, email)", v)
	}
}

// BreakerConfig tunes the circuit breaker shared by all portals.
type BreakerConfig struct {
	MaxRequests  uint32        `env:"MAX_REQUESTS"  envDefault:"1"`
	Interval     time.Duration `env:"INTERVAL"      envDefault:"60s"`
	Timeout      time.Duration `env:"TIMEOUT"       envDefault:"30s"`
	MinRequests  uint32        `env:"MIN_REQUESTS"  envDefault:"10"`
	FailureRatio float64       `env:"FAILURE_RATIO" envDefault:"0.5"`
}

// BackendConfig configures the REST backend every portal talks to.
type BackendConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:4000"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"10s"`

	Credential CredentialMode `env:"CREDENTIAL" envDefault:"token"`

	// RetryOnceOn401 re-issues a privileged request once after re-establishing the session.
	RetryOnceOn401 bool `env:"RETRY_ONCE_ON_401" envDefault:"true"`

	// BridgeTimeout bounds one session exchange or revoke call.
	BridgeTimeout time.Duration `env:"BRIDGE_TIMEOUT" envDefault:"5s"`
	// GraceWindow is how long after establishment a 401 is treated as a cookie race.
	GraceWindow time.Duration `env:"GRACE_WINDOW" envDefault:"3s"`

	// EnsureProfile creates the resident profile record on first sign-in.
	EnsureProfile  bool          `env:"ENSURE_PROFILE"  envDefault:"true"`
	ProfileTimeout time.Duration `env:"PROFILE_TIMEOUT" envDefault:"10s"`

	Breaker BreakerConfig `envPrefix:"BREAKER_"`
}

// Sanitize applies guardrails to backend configuration values.
func (b *BackendConfig) Sanitize() {
	b.BaseURL = strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if b.Credential == "" {
		b.Credential = CredentialToken
	}
	if b.Timeout <= 0 {
		b.Timeout = 10 * time.Second
	}
	if b.BridgeTimeout <= 0 {
		b.BridgeTimeout = 5 * time.Second
	}
	if b.GraceWindow < 0 {
		b.GraceWindow = 0
	}
	if b.ProfileTimeout <= 0 {
		b.ProfileTimeout = 10 * time.Second
	}
	if b.Breaker.FailureRatio <= 0 || b.Breaker.FailureRatio > 1 {
		b.Breaker.FailureRatio = 0.5
	}
	if b.Breaker.MaxRequests == 0 {
		b.Breaker.MaxRequests = 1
	}
}
