// Package config provides configuration management for the gateway. It
// handles loading and parsing the YAML configuration file and watching it
// for changes so the server can pick up edits without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the address the HTTP server binds to. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port" json:"port"`

	// APIKeys is a list of keys for authenticating clients to this gateway.
	// Empty disables client authentication.
	APIKeys []string `yaml:"api-keys" json:"api-keys"`

	// Gemini holds upstream provider settings.
	Gemini GeminiConfig `yaml:"gemini" json:"gemini"`

	// RequestLog enables or disables detailed request/response body logging.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile switches log output to a rotating file under LogDir.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory rotated log files are written to.
	LogDir string `yaml:"log-dir" json:"log-dir"`
}

// GeminiConfig holds settings for the upstream Gemini API.
type GeminiConfig struct {
	// BaseURL is the upstream endpoint. Defaults to the public
	// generativelanguage host.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// APIKey authenticates the gateway to the upstream when the inbound
	// request does not carry its own credential.
	APIKey string `yaml:"api-key" json:"api-key"`

	// TimeoutSeconds bounds non-streaming upstream calls. <= 0 means no
	// client-side timeout.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`
}

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// LoadConfig reads and parses the configuration file at the given path,
// applying defaults for omitted fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = defaultGeminiBaseURL
	}
	c.Gemini.BaseURL = strings.TrimRight(c.Gemini.BaseURL, "/")
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	// Environment variables take precedence over the file for credentials.
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		c.Gemini.APIKey = v
	}
}

// LogFilePath returns the log file location derived from LogDir.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, "gateway.log")
}

// Validate reports configuration errors that prevent startup and warnings
// that do not.
func (c *Config) Validate() ([]string, error) {
	if c.Port < 1 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", c.Port)
	}
	var warnings []string
	if c.Gemini.APIKey == "" {
		warnings = append(warnings, "no upstream api key configured; clients must supply their own credentials")
	}
	return warnings, nil
}
