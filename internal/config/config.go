// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Port          string   `env:"PORT" envDefault:"4000"`
	FrontendURL   string   `env:"FRONTEND_URL"`
	CORSAllowlist []string `env:"CORS_ALLOWLIST" envSeparator:","`
	StoreDriver   string   `env:"STORE_DRIVER" envDefault:"memory"`
	DBPath        string   `env:"DB_PATH" envDefault:"./data/calm.db"`
	DefaultUserID string   `env:"DEFAULT_USER_ID" envDefault:"demo-user"`
	ToolBearer    string   `env:"TOOL_BEARER_TOKEN"`
	SignedURL     SignedURLConfig
	AnalyticsLog  AnalyticsLogConfig
}

// SignedURLConfig controls signed session URL issuance for the voice widget.
type SignedURLConfig struct {
	AgentID string        `env:"AGENT_ID"`
	BaseURL string        `env:"SIGNED_URL_BASE" envDefault:"wss://convai.example/ws"`
	Secret  string        `env:"SIGNED_URL_SECRET"`
	Issuer  string        `env:"SIGNED_URL_ISSUER" envDefault:"seven-days-calm"`
	TTL     time.Duration `env:"SIGNED_URL_TTL" envDefault:"5m"`
}

// AnalyticsLogConfig controls NDJSON analytics event logging.
type AnalyticsLogConfig struct {
	Enabled   bool   `env:"ANALYTICS_LOG_ENABLED" envDefault:"false"`
	Dir       string `env:"ANALYTICS_LOG_DIR" envDefault:"./data/logs/analytics"`
	QueueSize int    `env:"ANALYTICS_LOG_QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.CORSAllowlist = normalizeOrigins(cfg.CORSAllowlist)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StoreSQLite, c.StoreDriver)
	}
	if strings.TrimSpace(c.DefaultUserID) == "" {
		return fmt.Errorf("DEFAULT_USER_ID cannot be empty")
	}
	if c.SignedURL.BaseURL == "" {
		return fmt.Errorf("SIGNED_URL_BASE cannot be empty")
	}
	if c.SignedURL.TTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be > 0")
	}
	if c.AnalyticsLog.Enabled && c.AnalyticsLog.Dir == "" {
		return fmt.Errorf("ANALYTICS_LOG_DIR cannot be empty")
	}
	if c.AnalyticsLog.QueueSize <= 0 {
		return fmt.Errorf("ANALYTICS_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// MissingEnv lists optional-but-expected variables that are unset.
// Reported by the health endpoint rather than failing startup.
func (c *Config) MissingEnv() []string {
	var missing []string
	if c.SignedURL.Secret == "" {
		missing = append(missing, "SIGNED_URL_SECRET")
	}
	if c.SignedURL.AgentID == "" {
		missing = append(missing, "AGENT_ID")
	}
	return missing
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
