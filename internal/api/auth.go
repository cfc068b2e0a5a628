package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/studydeck/internal/auth"
	"github.com/ashureev/studydeck/internal/domain"
	"github.com/go-chi/chi/v5"
)

// AuthHandler exposes the email and password auth endpoints.
type AuthHandler struct {
	svc    *auth.Service
	logger *slog.Logger
}

// NewAuthHandler returns a handler for svc.
func NewAuthHandler(svc *auth.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the endpoints under /api/auth.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(h.svc.RequireTrustedOrigin())
		r.Post("/sign-up/email", h.SignUp)
		r.Post("/sign-in/email", h.SignIn)
		r.Post("/sign-out", h.SignOut)
		r.Get("/get-session", h.GetSession)
		r.Post("/update-user", h.UpdateUser)
	})
}

type sessionResponse struct {
	Session *domain.Session `json:"session"`
	User    *domain.User    `json:"user"`
}

// SignUp handles POST /api/auth/sign-up/email.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeFields(w, r)
	if !ok {
		return
	}

	in := auth.SignUpInput{Fields: fields}
	if err := unmarshalField(fields, "email", &in.Email); err != nil {
		Error(w, http.StatusBadRequest, "invalid email")
		return
	}
	if err := unmarshalField(fields, "password", &in.Password); err != nil {
		Error(w, http.StatusBadRequest, "invalid password")
		return
	}
	if err := unmarshalField(fields, "name", &in.Name); err != nil {
		Error(w, http.StatusBadRequest, "invalid name")
		return
	}
	if err := unmarshalField(fields, "image", &in.Image); err != nil {
		Error(w, http.StatusBadRequest, "invalid image")
		return
	}

	user, sess, err := h.svc.SignUpEmail(r.Context(), in, auth.RequestMetaFrom(r))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.respondWithSession(w, user, sess)
}

// SignIn handles POST /api/auth/sign-in/email.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, defaultMaxRequestBodySize, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	user, sess, err := h.svc.SignInEmail(r.Context(), req.Email, req.Password, auth.RequestMetaFrom(r))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.respondWithSession(w, user, sess)
}

// SignOut handles POST /api/auth/sign-out.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if cookie := auth.SessionCookie(r); cookie != "" {
		if err := h.svc.SignOut(r.Context(), cookie); err != nil {
			h.logger.Error("Failed to revoke session", "error", err)
			Error(w, http.StatusInternalServerError, "failed to sign out")
			return
		}
	}
	h.svc.ClearSessionCookie(w)
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetSession handles GET /api/auth/get-session. It answers null when the
// request carries no valid session.
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	cookie := auth.SessionCookie(r)
	if cookie == "" {
		JSON(w, http.StatusOK, nil)
		return
	}

	sess, user, err := h.svc.GetSession(r.Context(), cookie)
	if errors.Is(err, auth.ErrUnauthorized) {
		JSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	JSON(w, http.StatusOK, sessionResponse{Session: sess, User: user})
}

// UpdateUser handles POST /api/auth/update-user.
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		h.writeAuthError(w, auth.ErrUnauthorized)
		return
	}

	fields, ok := h.decodeFields(w, r)
	if !ok {
		return
	}
	in := auth.UpdateUserInput{Fields: fields}
	if err := unmarshalField(fields, "name", &in.Name); err != nil {
		Error(w, http.StatusBadRequest, "invalid name")
		return
	}
	if err := unmarshalField(fields, "image", &in.Image); err != nil {
		Error(w, http.StatusBadRequest, "invalid image")
		return
	}

	updated, err := h.svc.UpdateUser(r.Context(), user.ID, in)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]*domain.User{"user": updated})
}

func (h *AuthHandler) decodeFields(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := decodeBody(w, r, defaultMaxRequestBodySize, &fields); err != nil {
		writeDecodeError(w, err)
		return nil, false
	}
	if fields == nil {
		Error(w, http.StatusBadRequest, errInvalidBody.Error())
		return nil, false
	}
	return fields, true
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, user *domain.User, sess *domain.Session) {
	if err := h.svc.SetSessionCookie(w, sess); err != nil {
		h.logger.Error("Failed to sign session cookie", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusOK, sessionResponse{Session: sess, User: user})
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		JSON(w, authErr.Status, map[string]string{"error": authErr.Message, "code": authErr.Code})
		return
	}
	h.logger.Error("Auth request failed", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}

// unmarshalField decodes fields[name] into v when present.
func unmarshalField(fields map[string]json.RawMessage, name string, v interface{}) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, v)
}
