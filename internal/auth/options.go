// Package auth configures and runs the email+password authentication service.
//
// The service is built once at startup from validated configuration and is
// handed to the HTTP layer by reference. Options mirrors the knobs the
// deployment controls: signing secret, trusted origins, the relational
// adapter, the credential strategy and the user schema extension.
package auth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/studydeck/internal/config"
	"github.com/ashureev/studydeck/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Names of the server-owned user schema extensions.
const (
	FieldRole          = "role"
	FieldImageCldPubID = "imageCldPubId"
)

// Options configures a Service.
type Options struct {
	Secret           string
	BaseURL          string
	TrustedOrigins   []string
	Database         DatabaseOptions
	EmailAndPassword EmailAndPasswordOptions
	User             UserOptions
	Session          SessionOptions
}

// DatabaseOptions selects the relational adapter.
type DatabaseOptions struct {
	Provider string // "pg", "mysql" or "sqlite"
}

// EmailAndPasswordOptions configures the credential strategy.
type EmailAndPasswordOptions struct {
	Enabled           bool
	MinPasswordLength int
	MaxPasswordLength int
	HashCost          int
}

// UserOptions extends the user entity.
type UserOptions struct {
	AdditionalFields map[string]FieldOptions
}

// FieldOptions describes one additional user field.
type FieldOptions struct {
	Type         string
	Required     bool
	DefaultValue string
	// Input reports whether clients may set the field through sign-up or
	// profile updates. When false the field is server-owned.
	Input bool
}

// SessionOptions configures session lifetime.
type SessionOptions struct {
	ExpiresIn time.Duration
}

// NewOptions returns the application's auth configuration derived from cfg.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Secret:         cfg.Auth.Secret,
		BaseURL:        cfg.Auth.BaseURL,
		TrustedOrigins: []string{cfg.FrontendURL, cfg.Auth.BaseURL},
		Database: DatabaseOptions{
			Provider: cfg.DB.Driver,
		},
		EmailAndPassword: EmailAndPasswordOptions{
			Enabled: true,
		},
		User: UserOptions{
			AdditionalFields: map[string]FieldOptions{
				FieldRole: {
					Type:         "string",
					Required:     false,
					DefaultValue: domain.RoleStudent,
					Input:        false,
				},
				FieldImageCldPubID: {
					Type:     "string",
					Required: false,
					Input:    false,
				},
			},
		},
		Session: SessionOptions{
			ExpiresIn: cfg.Auth.SessionTTL,
		},
	}
}

func (o *Options) applyDefaults() {
	if o.EmailAndPassword.MinPasswordLength == 0 {
		o.EmailAndPassword.MinPasswordLength = 8
	}
	if o.EmailAndPassword.MaxPasswordLength == 0 {
		// bcrypt only looks at the first 72 bytes.
		o.EmailAndPassword.MaxPasswordLength = 72
	}
	if o.EmailAndPassword.HashCost == 0 {
		o.EmailAndPassword.HashCost = bcrypt.DefaultCost
	}
	if o.Session.ExpiresIn == 0 {
		o.Session.ExpiresIn = 7 * 24 * time.Hour
	}
}

func (o *Options) validate() error {
	if o.Secret == "" {
		return fmt.Errorf("auth secret cannot be empty")
	}
	if _, err := normalizeOrigin(o.BaseURL); err != nil {
		return fmt.Errorf("auth base URL: %w", err)
	}
	if len(o.TrustedOrigins) == 0 {
		return fmt.Errorf("at least one trusted origin is required")
	}
	for _, origin := range o.TrustedOrigins {
		if _, err := normalizeOrigin(origin); err != nil {
			return fmt.Errorf("trusted origin: %w", err)
		}
	}
	switch o.Database.Provider {
	case config.DriverPostgres, config.DriverMySQL, config.DriverSQLite:
	default:
		return fmt.Errorf("unsupported database provider %q", o.Database.Provider)
	}
	if !o.EmailAndPassword.Enabled {
		return fmt.Errorf("email and password authentication must be enabled")
	}
	if o.EmailAndPassword.MaxPasswordLength > 72 {
		return fmt.Errorf("max password length %d exceeds bcrypt's 72 byte limit", o.EmailAndPassword.MaxPasswordLength)
	}
	if o.EmailAndPassword.MinPasswordLength > o.EmailAndPassword.MaxPasswordLength {
		return fmt.Errorf("min password length exceeds max password length")
	}
	if o.EmailAndPassword.HashCost < bcrypt.MinCost || o.EmailAndPassword.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid bcrypt cost %d", o.EmailAndPassword.HashCost)
	}
	for name := range o.User.AdditionalFields {
		if name != FieldRole && name != FieldImageCldPubID {
			return fmt.Errorf("unsupported additional user field %q", name)
		}
	}
	if o.Session.ExpiresIn < 0 {
		return fmt.Errorf("session lifetime must be positive")
	}
	return nil
}

// normalizeOrigin reduces a URL to scheme://host[:port].
func normalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", raw)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
