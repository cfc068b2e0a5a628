// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment keys. Viper upper-cases them when looking up the environment.
const (
	KeyPort           = "port"
	KeyFrontendURL    = "frontend_url"
	KeyAuthSecret     = "better_auth_secret"
	KeyAuthURL        = "better_auth_url"
	KeySessionTTL     = "session_ttl"
	KeyDBDriver       = "db_driver"
	KeyDatabaseURL    = "database_url"
	KeyDBPath         = "db_path"
	KeyDeepSeekAPIKey = "deepseek_api_key"
	KeyDeepSeekURL    = "deepseek_base_url"
	KeyDeepSeekModel  = "deepseek_model"
	KeyAIRateLimit    = "ai_rate_limit"
	KeyAIRateWindow   = "ai_rate_window"
	KeyTrustProxy     = "trust_proxy"
)

// Supported database drivers.
const (
	DriverPostgres = "pg"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	Auth        AuthConfig
	DB          DBConfig
	DeepSeek    DeepSeekConfig
	RateLimit   RateLimitConfig
	TrustProxy  bool // honour X-Forwarded-For and X-Real-IP for the client address
}

// AuthConfig configures the authentication service.
type AuthConfig struct {
	Secret     string
	BaseURL    string
	SessionTTL time.Duration
}

// DBConfig selects the relational driver backing the auth adapter.
type DBConfig struct {
	Driver string // "pg", "mysql" or "sqlite"
	URL    string // DSN for pg and mysql
	Path   string // file path for sqlite
}

// DeepSeekConfig configures the chat-completion provider.
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// RateLimitConfig bounds requests to the AI endpoint per client.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// MissingError reports every required environment variable that is unset.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Vars, ", ")
}

// NewViper returns a viper instance reading the process environment with
// the application defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeySessionTTL, 7*24*time.Hour)
	v.SetDefault(KeyDBDriver, DriverPostgres)
	v.SetDefault(KeyDBPath, "./data/studydeck.db")
	v.SetDefault(KeyDeepSeekURL, "https://api.deepseek.com")
	v.SetDefault(KeyDeepSeekModel, "deepseek-chat")
	v.SetDefault(KeyAIRateLimit, 10)
	v.SetDefault(KeyAIRateWindow, time.Minute)
	v.SetDefault(KeyTrustProxy, false)
	return v
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return FromViper(NewViper())
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        strings.TrimSpace(v.GetString(KeyPort)),
		FrontendURL: strings.TrimSpace(v.GetString(KeyFrontendURL)),
		Auth: AuthConfig{
			Secret:     v.GetString(KeyAuthSecret),
			BaseURL:    strings.TrimSpace(v.GetString(KeyAuthURL)),
			SessionTTL: v.GetDuration(KeySessionTTL),
		},
		DB: DBConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString(KeyDBDriver))),
			URL:    strings.TrimSpace(v.GetString(KeyDatabaseURL)),
			Path:   strings.TrimSpace(v.GetString(KeyDBPath)),
		},
		DeepSeek: DeepSeekConfig{
			APIKey:  strings.TrimSpace(v.GetString(KeyDeepSeekAPIKey)),
			BaseURL: strings.TrimRight(strings.TrimSpace(v.GetString(KeyDeepSeekURL)), "/"),
			Model:   strings.TrimSpace(v.GetString(KeyDeepSeekModel)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: v.GetInt(KeyAIRateLimit),
			WindowDuration:    v.GetDuration(KeyAIRateWindow),
		},
		TrustProxy: v.GetBool(KeyTrustProxy),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Every absent required variable is reported at once as a *MissingError.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.Secret == "" {
		missing = append(missing, strings.ToUpper(KeyAuthSecret))
	}
	if c.FrontendURL == "" {
		missing = append(missing, strings.ToUpper(KeyFrontendURL))
	}
	if c.Auth.BaseURL == "" {
		missing = append(missing, strings.ToUpper(KeyAuthURL))
	}
	if c.DeepSeek.APIKey == "" {
		missing = append(missing, strings.ToUpper(KeyDeepSeekAPIKey))
	}
	if (c.DB.Driver == DriverPostgres || c.DB.Driver == DriverMySQL) && c.DB.URL == "" {
		missing = append(missing, strings.ToUpper(KeyDatabaseURL))
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingError{Vars: missing}
	}

	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverMySQL:
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want pg, mysql or sqlite)", c.DB.Driver)
	}
	if err := requireAbsoluteURL("FRONTEND_URL", c.FrontendURL); err != nil {
		return err
	}
	if err := requireAbsoluteURL("BETTER_AUTH_URL", c.Auth.BaseURL); err != nil {
		return err
	}
	if err := requireAbsoluteURL("DEEPSEEK_BASE_URL", c.DeepSeek.BaseURL); err != nil {
		return err
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("AI_RATE_LIMIT must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("AI_RATE_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DB.Driver == DriverSQLite {
		return c.DB.Path
	}
	return c.DB.URL
}

func requireAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", name, raw)
	}
	return nil
}
