package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisekit/core"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "appraiseme", cfg.Product)
	assert.Equal(t, AdapterFile, cfg.Storage.Adapter)
	assert.Equal(t, 1, cfg.Debug)
	assert.Equal(t, "Rate Now", cfg.Prompt.RateLabel)

	c := cfg.Conditions.Core()
	require.NotNil(t, c)
	assert.Equal(t, int64(3), c.LaunchCount)
	assert.Equal(t, core.SigEventsDisabled, c.SigEventCount)
	assert.Equal(t, 1.0, c.DaysToPostpone)
	assert.Equal(t, "appworld://content/42", cfg.Store.Listing().URI("42"))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPRAISE_PRODUCT", "mygame")
	t.Setenv("APPRAISE_LAUNCH_COUNT", "10")
	t.Setenv("APPRAISE_DAYS_IN_USE", "2.5")
	t.Setenv("APPRAISE_STORE_ID", "95522")
	t.Setenv("APPRAISE_REDIS_ADDR", "redis:6379")
	t.Setenv("APPRAISE_SERVER_READ_TIMEOUT", "3s")
	t.Setenv("APPRAISE_WEBHOOK_ENDPOINTS", "http://a, http://b,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mygame", cfg.Product)
	assert.Equal(t, int64(10), cfg.Conditions.LaunchCount)
	assert.Equal(t, 2.5, cfg.Conditions.DaysInUse)
	assert.Equal(t, "95522", cfg.Store.ID)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Webhook.Endpoints)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("APPRAISE_LAUNCH_COUNT", "many")
	t.Setenv("APPRAISE_DEBUG", "loud")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPRAISE_LAUNCH_COUNT")
	assert.Contains(t, err.Error(), "APPRAISE_DEBUG")
}

func TestOverlayEnv_Map(t *testing.T) {
	env := map[string]string{"APPRAISE_LOG_ATTRIBUTES": "app=demo, region=eu"}
	cfg := DefaultConfig()
	err := overlayEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"app": "demo", "region": "eu"}, cfg.Logging.Attributes)

	env["APPRAISE_LOG_ATTRIBUTES"] = "broken"
	assert.Error(t, overlayEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appraise.json")
	content := `{
		"environment": "testing",
		"product": "fromfile",
		"conditions": {"enabled": true, "launch_count": 7, "sig_event_count": 2, "days_to_postpone": 3},
		"storage": {"adapter": "memory"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, "fromfile", cfg.Product)
	assert.Equal(t, int64(7), cfg.Conditions.LaunchCount)
	assert.Equal(t, int64(2), cfg.Conditions.SigEventCount)
	assert.Equal(t, AdapterMemory, cfg.Storage.Adapter)
	// untouched sections keep their defaults
	assert.Equal(t, "No, Thanks", cfg.Prompt.CancelLabel)
}

func TestLoadFromFile_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appraise.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"product": "fromfile"}`), 0o600))
	t.Setenv("APPRAISE_PRODUCT", "fromenv")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Product)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty environment", func(c *Config) { c.Environment = "" }},
		{"product with slash", func(c *Config) { c.Product = "../etc" }},
		{"debug out of range", func(c *Config) { c.Debug = 3 }},
		{"force gate in production", func(c *Config) { c.Environment = EnvProduction; c.Debug = 2 }},
		{"negative launches", func(c *Config) { c.Conditions.LaunchCount = -1 }},
		{"empty label", func(c *Config) { c.Prompt.LaterLabel = " " }},
		{"relative store uri", func(c *Config) { c.Store.BaseURI = "content/" }},
		{"unknown adapter", func(c *Config) { c.Storage.Adapter = "etcd" }},
		{"json without path", func(c *Config) { c.Storage.Adapter = AdapterJSON }},
		{"sql without dsn", func(c *Config) { c.Storage.Adapter = AdapterSQL }},
		{"redis without installation", func(c *Config) { c.Storage.Adapter = AdapterRedis; c.Storage.Installation = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"invalid server timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"rate limit without rpm", func(c *Config) {
			c.Security.EnableRateLimit = true
			c.Security.RateLimit.RequestsPerMinute = 0
		}},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate_AdvancedModeSkipsConditions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conditions.Enabled = false
	cfg.Conditions.LaunchCount = -1
	assert.NoError(t, cfg.Validate())
	assert.Nil(t, cfg.Conditions.Core())
}

func TestConfig_StringRedacts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.SQL.DSN = "postgres://user:secret@db/app"
	cfg.Security.APIKeys = []string{"k1"}
	s := cfg.String()
	assert.NotContains(t, s, "secret")
	assert.NotContains(t, s, "k1")
	assert.Contains(t, s, "[REDACTED]")
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", true, EnvDevelopment},
		{"testing", true, EnvTesting},
		{"staging", true, EnvStaging},
		{"production", true, EnvProduction},
		{"unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.profileName, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if !tt.expectConfig {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.environment, cfg.Environment)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "c.json")
	txt := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(good, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(txt, []byte("{}"), 0o600))

	assert.NoError(t, validateConfigPath(good))
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath(txt))
	assert.Error(t, validateConfigPath(filepath.Join(dir, "missing.json")))
}
