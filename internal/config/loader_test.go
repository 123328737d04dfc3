package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the allowed config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "grievanced")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, ZeroCategoryAllow, cfg.Intake.ZeroCategoryPolicy)
	assert.Equal(t, 6, cfg.OTP.CodeLength)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 3, cfg.OTP.MaxResends)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, "GR", cfg.Identifier.Prefix)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "grievanced", cfg.Observability.ServiceName)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  http_port: 9191
intake:
  zero_category_policy: acknowledge
  max_category_edits: 12
otp:
  ttl: 2m
  max_resends: 2
store:
  driver: sqlite
  dsn: file:/var/lib/grievanced/grievances.db
classifier:
  api_key: sk-live-abc
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, ZeroCategoryAcknowledge, cfg.Intake.ZeroCategoryPolicy)
	assert.Equal(t, 12, cfg.Intake.MaxCategoryEdits)
	assert.Equal(t, 2*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 2, cfg.OTP.MaxResends)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sk-live-abc", cfg.Classifier.APIKey.Value())
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9191\n", 0600)

	t.Setenv("SERVER_HTTP_PORT", "9292")
	t.Setenv("INTAKE_ZERO_CATEGORY_POLICY", "reclassify")
	t.Setenv("OTP_MAX_ATTEMPTS", "7")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9292, cfg.Server.Port)
	assert.Equal(t, ZeroCategoryReclassify, cfg.Intake.ZeroCategoryPolicy)
	assert.Equal(t, 7, cfg.OTP.MaxAttempts)
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_RejectsSiblingPrefixDir(t *testing.T) {
	dir := setupTestHome(t)
	sibling := dir + "-evil"
	require.NoError(t, os.MkdirAll(sibling, 0700))

	_, err := LoadWithFile(filepath.Join(sibling, "config.yaml"))
	require.Error(t, err)
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9191\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_RejectsInvalidPolicy(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "intake:\n  zero_category_policy: ignore\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero_category_policy")
}

func TestValidate_BackendRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = "sqlite" }, "store.dsn"},
		{"redis without addr", func(c *Config) { c.Session.Backend = "redis" }, "session.redis_addr"},
		{"webhook without url", func(c *Config) { c.Delivery.Provider = "webhook" }, "delivery.webhook_url"},
		{"llm without model", func(c *Config) { c.Classifier.Provider = "llm" }, "classifier.model"},
		{"lowercase prefix", func(c *Config) { c.Identifier.Prefix = "gr" }, "identifier.prefix"},
		{"temporal without legacy", func(c *Config) {
			c.Temporal.Enabled = true
			c.Temporal.HostPort = "localhost:7233"
		}, "legacy.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	var back Secret
	assert.Error(t, json.Unmarshal([]byte(`"[REDACTED]"`), &back))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("SERVER_HTTP_PORT"))
	assert.Equal(t, "intake.zero_category_policy", envKey("INTAKE_ZERO_CATEGORY_POLICY"))
	assert.Equal(t, "home", envKey("HOME"))
}

func TestSecret_Formatting(t *testing.T) {
	s := Secret("postgres://grv:pw@db/grievances")
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, `config.Secret("[REDACTED]")`, fmt.Sprintf("%#v", s))
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())

	var back Secret
	require.NoError(t, back.UnmarshalText([]byte("tok")))
	assert.Equal(t, "tok", back.Value())
	assert.Error(t, back.UnmarshalText([]byte("[REDACTED]")))
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalText([]byte("30")))
	assert.Equal(t, 30*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := Duration(2 * time.Minute).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2m0s", string(text))
}
