package config

import (
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// ErrMissingAPIKey is returned when no model credential is configured.  It is
// a fatal startup condition; the server must not come up without it.
var ErrMissingAPIKey = errors.New("model API key is not configured (set OPENAI_API_KEY or model.api_key)")

// Config holds all settings for the consultation server.  Values come from an
// optional TOML file and can be overridden by environment variables.
type Config struct {
	Server struct {
		Addr string `toml:"addr"`
	} `toml:"server"`

	Model struct {
		APIKey  string `toml:"api_key"`
		BaseURL string `toml:"base_url"` // OpenAI-compatible endpoint, default official API
		Name    string `toml:"name"`
	} `toml:"model"`

	Upload struct {
		MaxBytes int64 `toml:"max_bytes"`
	} `toml:"upload"`
}

// Load reads the TOML file at path (skipped when path is empty), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if cfg.Model.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &cfg, nil
}

// applyEnv lets environment variables override file values, matching the
// variable names used by the OpenAI SDK ecosystem.
func applyEnv(c *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
}

func applyDefaults(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Model.Name == "" {
		c.Model.Name = "gpt-4o-mini"
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 8 << 20
	}
}
