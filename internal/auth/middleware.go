package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ashureev/studydeck/internal/domain"
)

// SessionCookieName is the cookie carrying the signed session.
const SessionCookieName = "studydeck.session_token"

type contextKey int

const (
	userKey contextKey = iota
	sessionKey
)

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	if v, ok := ctx.Value(userKey).(*domain.User); ok {
		return v
	}
	return nil
}

// SessionFromContext returns the current session, or nil.
func SessionFromContext(ctx context.Context) *domain.Session {
	if v, ok := ctx.Value(sessionKey).(*domain.Session); ok {
		return v
	}
	return nil
}

// WithUser returns a copy of ctx carrying user and sess.
func WithUser(ctx context.Context, user *domain.User, sess *domain.Session) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionCookie returns the raw session cookie value of r, or "".
func SessionCookie(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetSessionCookie writes the signed cookie for sess.
func (s *Service) SetSessionCookie(w http.ResponseWriter, sess *domain.Session) error {
	value, err := s.signSessionCookie(sess)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sess.TTL(s.now()).Seconds()),
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies,
	})
	return nil
}

// ClearSessionCookie expires the session cookie.
func (s *Service) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies,
	})
}

// Middleware resolves the session cookie, when present, and injects the
// user and session into the request context. Requests without a valid
// session pass through unauthenticated.
func (s *Service) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie := SessionCookie(r)
			if cookie == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, user, err := s.GetSession(r.Context(), cookie)
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					s.logger.Error("failed to resolve session", "error", err)
					http.Error(w, `{"error":"failed to resolve session"}`, http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, sess)))
		})
	}
}

// RequireTrustedOrigin rejects state-changing requests whose Origin (or,
// failing that, Referer) is not a trusted origin. Requests carrying neither
// header come from non-browser clients and pass.
func (s *Service) RequireTrustedOrigin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = r.Header.Get("Referer")
			}
			if origin != "" && !s.IsTrustedOrigin(origin) {
				s.logger.Warn("rejected untrusted origin", "origin", origin, "path", r.URL.Path)
				http.Error(w, `{"error":"Invalid origin","code":"INVALID_ORIGIN"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestMetaFrom extracts the client details recorded on new sessions.
func RequestMetaFrom(r *http.Request) RequestMeta {
	return RequestMeta{
		IPAddress: IPFromRequest(r),
		UserAgent: r.UserAgent(),
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
