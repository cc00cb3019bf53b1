package config

import "strings"

// RedisConfig contains Redis configuration for portal sessions and the shared role cache.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// SessionPrefix namespaces portal session records.
	SessionPrefix string `env:"SESSION_PREFIX" envDefault:"portal:session:"`
}

// Sanitize applies guardrails to Redis configuration values.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	if r.DB < 0 {
		r.DB = 0
	}
	if r.SessionPrefix == "" {
		r.SessionPrefix = "portal:session:"
	}
}
