package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	ClientURL  string           `yaml:"client_url"`
	StateToken StateTokenConfig `yaml:"state_token"`
	Providers  ProvidersConfig  `yaml:"providers"`
	LLM        LLMConfig        `yaml:"llm"`
	Skills     map[string]bool  `yaml:"skills,omitempty"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig contains authentication configuration for API routes.
type AuthConfig struct {
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
	UserHeader string   `yaml:"user_header"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// DatabaseConfig contains SQLite storage configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StateTokenConfig configures the OAuth state codec.
type StateTokenConfig struct {
	// Secret is the symmetric secret the encryption key is derived from.
	Secret string `yaml:"secret"`
	// TTL bounds how long an issued state token stays redeemable.
	// Default: 10m
	TTL time.Duration `yaml:"ttl"`
}

// ProvidersConfig groups per-provider OAuth settings.
type ProvidersConfig struct {
	Notion NotionConfig `yaml:"notion"`
	GitHub GitHubConfig `yaml:"github"`
}

// NotionConfig contains the document-workspace provider settings.
type NotionConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	// BaseURL overrides the provider API host, used in tests.
	BaseURL string `yaml:"base_url,omitempty"`
}

// GitHubConfig contains the code-host provider settings, including the
// App identity used to mint installation tokens.
type GitHubConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RedirectURI    string `yaml:"redirect_uri"`
	Scope          string `yaml:"scope"`
	AppID          string `yaml:"app_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	BaseURL        string `yaml:"base_url,omitempty"`
	AuthBaseURL    string `yaml:"auth_base_url,omitempty"`
}

// LLMConfig contains the hosted language model settings.
type LLMConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Deployment  string        `yaml:"deployment"`
	APIVersion  string        `yaml:"api_version"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// NotifyConfig contains optional notification settings.
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig contains Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// DefaultSkills are the extraction skills enabled when the config does not
// override them.
func DefaultSkills() map[string]bool {
	return map[string]bool{
		"extract_tasks":     true,
		"summarize":         true,
		"draft_followups":   true,
		"suggest_reminders": true,
		"detect_risks":      true,
	}
}

// Validate validates the configuration. It fails fast on anything the
// pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.ClientURL != "" {
		if _, err := url.Parse(c.ClientURL); err != nil {
			return fmt.Errorf("client_url is not a valid URL: %w", err)
		}
	}
	if err := c.StateToken.Validate(); err != nil {
		return fmt.Errorf("state_token: %w", err)
	}
	if err := c.Providers.Notion.Validate(); err != nil {
		return fmt.Errorf("providers.notion: %w", err)
	}
	if err := c.Providers.GitHub.Validate(); err != nil {
		return fmt.Errorf("providers.github: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", s.HTTPPort)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	switch strings.ToLower(s.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}

// Validate validates the state token configuration.
func (s *StateTokenConfig) Validate() error {
	if s.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if s.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	return nil
}

// Validate validates the document-workspace provider configuration.
func (n *NotionConfig) Validate() error {
	if n.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if n.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if n.RedirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}
	return nil
}

// Validate validates the code-host provider configuration. The App identity
// is optional: without it the pipeline runs on user tokens only.
func (g *GitHubConfig) Validate() error {
	if g.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if g.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if g.RedirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}
	if g.AppID != "" && g.PrivateKeyPath == "" {
		return fmt.Errorf("private_key_path is required when app_id is set")
	}
	return nil
}

// Validate validates the language model configuration.
func (l *LLMConfig) Validate() error {
	if l.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if l.Deployment == "" {
		return fmt.Errorf("deployment is required")
	}
	if l.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
