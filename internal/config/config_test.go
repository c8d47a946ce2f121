package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, "gemini:\n  api-key: file-key\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8317, cfg.Port)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.Gemini.BaseURL)
	assert.Equal(t, "file-key", cfg.Gemini.APIKey)
}

func TestLoadConfigFull(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, `
host: 127.0.0.1
port: 9000
api-keys:
  - client-a
gemini:
  base-url: https://example.com/upstream/
  api-key: upstream-key
  timeout-seconds: 30
request-log: true
debug: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://example.com/upstream", cfg.Gemini.BaseURL, "trailing slash must be trimmed")
	assert.Equal(t, 30, cfg.Gemini.TimeoutSeconds)
	assert.True(t, cfg.RequestLog)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"client-a"}, cfg.APIKeys)
}

func TestLoadConfigEnvOverridesKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	path := writeConfig(t, "gemini:\n  api-key: file-key\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Gemini.APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 0}
	_, err := cfg.Validate()
	assert.Error(t, err, "port 0 must fail validation")

	cfg = &Config{Port: 8317}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Len(t, warnings, 1, "missing upstream key should warn")
}
