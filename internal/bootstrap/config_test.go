package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/towertrack-portal/config"
)

func validConfig() *config.AppConfig {
	return &config.AppConfig{
		Auth: config.AuthConfig{
			Mode: config.AuthModeMock,
			DevAuth: config.DevAuthConfig{
				Users:      "admin@x.com:secret1",
				SigningKey: "0123456789abcdef",
			},
		},
		Backend: config.BackendConfig{BaseURL: "http://backend.internal:4000"},
	}
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))
	require.Error(t, ValidateConfig(nil))

	cfg := validConfig()
	cfg.Backend.BaseURL = "backend"
	cfg.Auth.DevAuth.SigningKey = "short"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_BASE_URL")
	assert.Contains(t, err.Error(), "DEV_AUTH_SIGNING_KEY", "every problem is reported at once")

	cfg = validConfig()
	cfg.Auth.Mode = config.AuthModeOAuth
	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH_CLIENT_ID")
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("BACKEND_BASE_URL", "http://api.local/")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.AuthModeMock, cfg.Auth.Mode)
	assert.Equal(t, "http://api.local", cfg.Backend.BaseURL)
	assert.Equal(t, config.LogFormatText, cfg.Observability.Logging.Format)
	require.NoError(t, ValidateConfig(&cfg), "dev defaults are a runnable configuration")
}

func TestNewLogger_RespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: slog.LevelWarn, Format: config.LogFormatJSON})
	logger.Info("dropped")
	logger.Warn("kept", "portal", "p1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "p1", line["portal"])
}
