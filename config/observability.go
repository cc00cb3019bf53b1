package config

import (
	"fmt"
	"log/slog"
	"strings"
)

const defaultMetricsNamespace = "portal"

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// UnmarshalText implements encoding.TextUnmarshaler for LogFormat.
func (f *LogFormat) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "json", "text":
		*f = LogFormat(v)
		return nil
	default:
		return fmt.Errorf("invalid LogFormat: %q (valid options: json, text)", v)
	}
}

// ObservabilityConfig groups configuration that controls logging and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig
	Metrics MetricsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Logging.Sanitize()
	c.Metrics.Sanitize()
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level accepts slog level names (debug, info, warn, error).
	Level  slog.Level `env:"LOG_LEVEL"  envDefault:"info"`
	Format LogFormat  `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize normalises the log format.
func (c *LoggingConfig) Sanitize() {
	if c.Format == "" {
		c.Format = LogFormatJSON
	}
}

// MetricsConfig controls the Prometheus collectors and the /metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `env:"METRICS_ENABLED"   envDefault:"true"`
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"portal"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *MetricsConfig) Sanitize() {
	if c.Namespace = strings.TrimSpace(c.Namespace); c.Namespace == "" {
		c.Namespace = defaultMetricsNamespace
	}
}
