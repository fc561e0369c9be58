// Package config provides configuration for the orchestrator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. COGNICARE_SERVER_HTTP_PORT.
const EnvPrefix = "COGNICARE_"

// Config holds the orchestrator configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Collaborators CollaboratorsConfig `koanf:"collaborators"`
	Context       ContextConfig       `koanf:"context"`
	Screening     ScreeningConfig     `koanf:"screening"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort        int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds the store DSN.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig holds caller and service token settings.
type AuthConfig struct {
	CallerSecret    string        `koanf:"caller_secret"`
	ServiceSecret   string        `koanf:"service_secret"`
	ServiceIssuer   string        `koanf:"service_issuer"`
	ServiceTokenTTL time.Duration `koanf:"service_token_ttl"`
}

// CollaboratorsConfig holds outbound collaborator settings.
type CollaboratorsConfig struct {
	BaseURL string `koanf:"base_url"`
	// Endpoints overrides the URL of individual collaborators, keyed by name.
	Endpoints map[string]string `koanf:"endpoints"`
	Timeout   time.Duration     `koanf:"timeout"`
	RateLimit float64           `koanf:"rate_limit"`
	RateBurst int               `koanf:"rate_burst"`
}

// ContextConfig bounds the historical context forwarded to collaborators.
type ContextConfig struct {
	PriorSessions        int `koanf:"prior_sessions"`
	NotesMaxChars        int `koanf:"notes_max_chars"`
	ProgressHistory      int `koanf:"progress_history"`
	DocumentationHistory int `koanf:"documentation_history"`
}

// ScreeningConfig holds the risk keyword list.
type ScreeningConfig struct {
	Keywords []string `koanf:"keywords"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultRiskKeywords is the keyword list used when none is configured.
var DefaultRiskKeywords = []string{
	"suicide",
	"suicidal",
	"self-harm",
	"self harm",
	"kill myself",
	"end my life",
	"crisis",
	"abuse",
	"abused",
	"violence",
	"violent",
	"threatening",
	"threat",
	"harm others",
	"homicidal",
	"overdose",
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "file:cognicare.db?cache=shared&mode=rwc",
		},
		Auth: AuthConfig{
			ServiceIssuer:   "cognicare-orchestrator",
			ServiceTokenTTL: 5 * time.Minute,
		},
		Collaborators: CollaboratorsConfig{
			BaseURL:   "http://localhost:3000/api/agents",
			Timeout:   120 * time.Second,
			RateLimit: 10,
			RateBurst: 5,
		},
		Context: ContextConfig{
			PriorSessions:        5,
			NotesMaxChars:        200,
			ProgressHistory:      5,
			DocumentationHistory: 3,
		},
		Screening: ScreeningConfig{
			Keywords: append([]string(nil), DefaultRiskKeywords...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from an optional YAML file, then overrides with environment variables.
//
// Environment variables split on the first underscore after the prefix:
//
//	COGNICARE_SERVER_HTTP_PORT -> server.http_port
//	COGNICARE_AUTH_CALLER_SECRET -> auth.caller_secret
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	// Slices are decoded in place; start empty so a configured list replaces the default.
	cfg.Screening.Keywords = nil
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyDefaults patches zero values left by an explicit empty setting.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = def.Server.HTTPPort
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = def.Database.URL
	}
	if cfg.Auth.ServiceIssuer == "" {
		cfg.Auth.ServiceIssuer = def.Auth.ServiceIssuer
	}
	if cfg.Auth.ServiceTokenTTL == 0 {
		cfg.Auth.ServiceTokenTTL = def.Auth.ServiceTokenTTL
	}
	if len(cfg.Screening.Keywords) == 0 {
		cfg.Screening.Keywords = def.Screening.Keywords
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Auth.CallerSecret == "" {
		return fmt.Errorf("auth.caller_secret is required")
	}
	if c.Auth.ServiceSecret == "" {
		return fmt.Errorf("auth.service_secret is required")
	}
	if c.Auth.CallerSecret == c.Auth.ServiceSecret {
		return fmt.Errorf("auth.caller_secret and auth.service_secret must differ")
	}
	if c.Collaborators.BaseURL == "" {
		for _, name := range domain.Collaborators {
			if c.Collaborators.Endpoints[string(name)] == "" {
				return fmt.Errorf("collaborators.endpoints.%s is required when collaborators.base_url is empty", name)
			}
		}
	}
	if c.Collaborators.Timeout <= 0 {
		return fmt.Errorf("collaborators.timeout must be positive")
	}
	if c.Collaborators.RateLimit < 0 || c.Collaborators.RateBurst < 0 {
		return fmt.Errorf("collaborators rate limit must not be negative")
	}
	ctx := c.Context
	if ctx.PriorSessions <= 0 || ctx.NotesMaxChars <= 0 || ctx.ProgressHistory <= 0 || ctx.DocumentationHistory <= 0 {
		return fmt.Errorf("context limits must be positive")
	}
	return nil
}

// CollaboratorURL resolves the endpoint URL of a collaborator.
func (c CollaboratorsConfig) CollaboratorURL(name string) string {
	if u, ok := c.Endpoints[name]; ok && u != "" {
		return u
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + name
}
