package config

import (
	"strings"
	"time"
)

// RolesConfig controls how a signed-in identity's role is looked up and cached.
type RolesConfig struct {
	// Expression is a JMESPath expression selecting the role from the role endpoint body.
	Expression string `env:"ROLES_EXPRESSION" envDefault:"role"`
	// MissingIsUser treats an absent role field as "user". Off means a missing
	// role is a lookup failure and privileged pages stay closed.
	MissingIsUser bool `env:"ROLE_MISSING_IS_USER" envDefault:"false"`

	TTL           time.Duration `env:"ROLES_CACHE_TTL"      envDefault:"5m"`
	StaleWindow   time.Duration `env:"ROLES_STALE_WINDOW"   envDefault:"0s"`
	FetchTimeout  time.Duration `env:"ROLES_FETCH_TIMEOUT"  envDefault:"10s"`
	LocalCapacity int           `env:"ROLES_LOCAL_CAPACITY" envDefault:"10000"`

	// ErrorRetry is the minimum wait before a failed lookup is attempted again.
	ErrorRetry time.Duration `env:"ROLES_ERROR_RETRY" envDefault:"5s"`

	// SharedCache stores resolved roles in Redis so every instance sees invalidations.
	SharedCache bool   `env:"ROLES_SHARED_CACHE" envDefault:"true"`
	CachePrefix string `env:"ROLES_CACHE_PREFIX" envDefault:"portal:role:"`

	// Static replaces the backend role endpoint with "email=role" pairs (development).
	Static        string `env:"ROLES_STATIC"`
	StaticDefault string `env:"ROLES_STATIC_DEFAULT"`
}

// Sanitize applies guardrails to role caching values.
func (r *RolesConfig) Sanitize() {
	if r.Expression = strings.TrimSpace(r.Expression); r.Expression == "" {
		r.Expression = "role"
	}
	if r.TTL <= 0 {
		r.TTL = 5 * time.Minute
	}
	if r.StaleWindow < 0 {
		r.StaleWindow = 0
	}
	if r.FetchTimeout <= 0 {
		r.FetchTimeout = 10 * time.Second
	}
	if r.ErrorRetry <= 0 {
		r.ErrorRetry = 5 * time.Second
	}
	if r.LocalCapacity <= 0 {
		r.LocalCapacity = 10000
	}
	if r.CachePrefix == "" {
		r.CachePrefix = "portal:role:"
	}
	r.Static = strings.TrimSpace(r.Static)
}

// UsesStaticRoles reports whether roles come from configuration instead of the backend.
func (r *RolesConfig) UsesStaticRoles() bool { return r.Static != "" }
