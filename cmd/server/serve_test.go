package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/studydeck/internal/api"
	"github.com/ashureev/studydeck/internal/auth"
	"github.com/ashureev/studydeck/internal/config"
)

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string) (string, error) { return "pong", nil }

func (stubGenerator) GenerateJSONRaw(context.Context, string, string) ([]byte, error) {
	return []byte(`{"ok":true}`), nil
}

func newTestServer(t *testing.T, trustProxy bool, limit int) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Port:        "0",
		FrontendURL: "http://localhost:5173",
		Auth:        config.AuthConfig{Secret: "s", BaseURL: "http://localhost:8080", SessionTTL: time.Hour},
		DB:          config.DBConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "app.db")},
		TrustProxy:  trustProxy,
	}
	repo, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { closeStore(repo) })

	authSvc, err := auth.New(auth.NewOptions(cfg), repo, nil)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	limiter := api.NewRateLimiter(limit, time.Minute)
	t.Cleanup(limiter.Stop)

	srv := httptest.NewServer(newRouter(cfg, repo, authSvc, stubGenerator{}, limiter))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter(t *testing.T) {
	srv := newTestServer(t, false, 10)

	tests := []struct {
		name     string
		method   string
		path     string
		origin   string
		body     string
		wantCode int
		wantBody string
	}{
		{"heartbeat", http.MethodGet, "/health", "", "", http.StatusOK, "."},
		{"health", http.MethodGet, "/api/health", "", "", http.StatusOK, `"database":"ok"`},
		{"ai", http.MethodPost, "/api/ai", "http://localhost:5173", `{"prompt":"ping"}`, http.StatusOK, `{"data":"pong"}`},
		{"ai json", http.MethodPost, "/api/ai/json", "", `{"prompt":"ping"}`, http.StatusOK, `{"data":{"ok":true}}`},
		{"ai untrusted origin", http.MethodPost, "/api/ai", "https://evil.example.com", `{"prompt":"ping"}`, http.StatusForbidden, "INVALID_ORIGIN"},
		{"session without cookie", http.MethodGet, "/api/auth/get-session", "", "", http.StatusOK, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			buf := new(strings.Builder)
			_, _ = io.Copy(buf, resp.Body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, resp.StatusCode, buf)
			}
			if !strings.Contains(buf.String(), tt.wantBody) {
				t.Errorf("Expected body containing %q, got %q", tt.wantBody, buf)
			}
			if tt.origin == "http://localhost:5173" && resp.Header.Get("Access-Control-Allow-Origin") != tt.origin {
				t.Errorf("Expected CORS header for trusted origin")
			}
		})
	}
}

func TestRouterForwardedForRequiresTrustedProxy(t *testing.T) {
	post := func(t *testing.T, srv *httptest.Server, forwardedFor string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/ai", strings.NewReader(`{"prompt":"ping"}`))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Forwarded-For", forwardedFor)
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode
	}

	t.Run("untrusted", func(t *testing.T) {
		srv := newTestServer(t, false, 1)
		if code := post(t, srv, "203.0.113.1"); code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", code)
		}
		if code := post(t, srv, "203.0.113.2"); code != http.StatusTooManyRequests {
			t.Fatalf("Spoofed X-Forwarded-For: expected 429, got %d", code)
		}
	})

	t.Run("trusted", func(t *testing.T) {
		srv := newTestServer(t, true, 1)
		if code := post(t, srv, "203.0.113.1"); code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", code)
		}
		if code := post(t, srv, "203.0.113.2"); code != http.StatusOK {
			t.Fatalf("Distinct forwarded client: expected 200, got %d", code)
		}
	})
}
