package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareInjectsUser(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	user, sess := signUp(t, svc, "ada@example.com")

	rec := httptest.NewRecorder()
	if err := svc.SetSessionCookie(rec, sess); err != nil {
		t.Fatalf("SetSessionCookie failed: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies %+v", cookies)
	}

	var gotID string
	handler := svc.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := UserFromContext(r.Context()); u != nil {
			gotID = u.ID
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/ai", nil)
	req.AddCookie(cookies[0])
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotID != user.ID {
		t.Fatalf("expected user %s in context, got %q", user.ID, gotID)
	}

	gotID = ""
	req = httptest.NewRequest(http.MethodGet, "/api/ai", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotID != "" {
		t.Fatalf("forged cookie must not authenticate, got %q", gotID)
	}

	if err := svc.SignOut(context.Background(), cookies[0].Value); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/ai", nil)
	req.AddCookie(cookies[0])
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotID != "" {
		t.Fatalf("revoked cookie must not authenticate, got %q", gotID)
	}
}

func TestRequireTrustedOrigin(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	handler := svc.RequireTrustedOrigin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		want    int
	}{
		{"trusted origin", http.MethodPost, map[string]string{"Origin": "http://localhost:5173"}, http.StatusNoContent},
		{"untrusted origin", http.MethodPost, map[string]string{"Origin": "https://evil.example.com"}, http.StatusForbidden},
		{"untrusted referer", http.MethodPost, map[string]string{"Referer": "https://evil.example.com/page"}, http.StatusForbidden},
		{"trusted referer", http.MethodPost, map[string]string{"Referer": "http://localhost:5173/login"}, http.StatusNoContent},
		{"no headers", http.MethodPost, nil, http.StatusNoContent},
		{"safe method", http.MethodGet, map[string]string{"Origin": "https://evil.example.com"}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/auth/sign-in/email", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:53211"
	if got := IPFromRequest(req); got != "10.0.0.7" {
		t.Fatalf("expected 10.0.0.7, got %q", got)
	}
	req.RemoteAddr = "unix"
	if got := IPFromRequest(req); got != "unix" {
		t.Fatalf("expected raw remote addr, got %q", got)
	}
}
