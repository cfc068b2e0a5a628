package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/ashureev/studydeck/internal/config"
	"github.com/ashureev/studydeck/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:        "8080",
		FrontendURL: "http://localhost:5173",
		Auth: config.AuthConfig{
			Secret:     "test-secret",
			BaseURL:    "http://localhost:8080",
			SessionTTL: time.Hour,
		},
		DB: config.DBConfig{Driver: config.DriverPostgres, URL: "postgres://localhost/app"},
	}
}

func TestNewOptionsFromConfig(t *testing.T) {
	t.Parallel()
	opts := NewOptions(testConfig())

	if len(opts.TrustedOrigins) != 2 ||
		opts.TrustedOrigins[0] != "http://localhost:5173" ||
		opts.TrustedOrigins[1] != "http://localhost:8080" {
		t.Fatalf("unexpected trusted origins %v", opts.TrustedOrigins)
	}
	if opts.Database.Provider != "pg" {
		t.Errorf("expected pg provider, got %q", opts.Database.Provider)
	}
	if !opts.EmailAndPassword.Enabled {
		t.Error("expected email and password to be enabled")
	}

	role, ok := opts.User.AdditionalFields[FieldRole]
	if !ok {
		t.Fatal("missing role field")
	}
	if role.Input || role.DefaultValue != domain.RoleStudent || role.Type != "string" {
		t.Errorf("unexpected role field %+v", role)
	}
	img, ok := opts.User.AdditionalFields[FieldImageCldPubID]
	if !ok {
		t.Fatal("missing imageCldPubId field")
	}
	if img.Input || img.Required {
		t.Errorf("unexpected imageCldPubId field %+v", img)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	tests := []struct {
		name   string
		mutate func(*Options)
		want   string
	}{
		{"empty secret", func(o *Options) { o.Secret = "" }, "secret"},
		{"no origins", func(o *Options) { o.TrustedOrigins = nil }, "trusted origin"},
		{"relative origin", func(o *Options) { o.TrustedOrigins = []string{"/app"} }, "trusted origin"},
		{"unknown provider", func(o *Options) { o.Database.Provider = "mongo" }, "provider"},
		{"password disabled", func(o *Options) { o.EmailAndPassword.Enabled = false }, "email and password"},
		{"unknown field", func(o *Options) {
			o.User.AdditionalFields = map[string]FieldOptions{"isAdmin": {Type: "boolean"}}
		}, "isAdmin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions(testConfig())
			tt.mutate(&opts)
			svc, err := New(opts, repo, nil)
			if err == nil {
				t.Fatalf("expected error, got service %+v", svc)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestIsTrustedOrigin(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	for _, origin := range []string{"http://localhost:5173", "http://LOCALHOST:5173/", "http://localhost:8080/api/auth/sign-in"} {
		if !svc.IsTrustedOrigin(origin) {
			t.Errorf("expected %q to be trusted", origin)
		}
	}
	for _, origin := range []string{"http://evil.example.com", "https://localhost:5173", "null", ""} {
		if svc.IsTrustedOrigin(origin) {
			t.Errorf("expected %q to be rejected", origin)
		}
	}
}
