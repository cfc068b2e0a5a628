package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/studydeck/internal/domain"
	"github.com/ashureev/studydeck/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service is the configured authentication service.
type Service struct {
	opts          Options
	repo          store.Repository
	logger        *slog.Logger
	origins       map[string]struct{}
	secureCookies bool
	now           func() time.Time
}

// RequestMeta carries client details recorded on new sessions.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// SignUpInput is a client-submitted sign-up request.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Image    *string
	// Fields holds every submitted property keyed by its JSON name, used to
	// reject server-owned fields.
	Fields map[string]json.RawMessage
}

// UpdateUserInput is a client-submitted profile update.
type UpdateUserInput struct {
	Name   *string
	Image  *string
	Fields map[string]json.RawMessage
}

// New validates opts and returns the auth service bound to repo.
func New(opts Options, repo store.Repository, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("auth: repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	origins := make(map[string]struct{}, len(opts.TrustedOrigins))
	for _, o := range opts.TrustedOrigins {
		normalized, _ := normalizeOrigin(o)
		origins[normalized] = struct{}{}
	}

	return &Service{
		opts:          opts,
		repo:          repo,
		logger:        logger,
		origins:       origins,
		secureCookies: strings.HasPrefix(strings.ToLower(opts.BaseURL), "https://"),
		now:           time.Now,
	}, nil
}

// Options returns the effective configuration.
func (s *Service) Options() Options {
	return s.opts
}

// IsTrustedOrigin reports whether origin is one of the configured trusted origins.
func (s *Service) IsTrustedOrigin(origin string) bool {
	normalized, err := normalizeOrigin(origin)
	if err != nil {
		return false
	}
	_, ok := s.origins[normalized]
	return ok
}

// SignUpEmail registers a user with email and password and opens a session.
func (s *Service) SignUpEmail(ctx context.Context, in SignUpInput, meta RequestMeta) (*domain.User, *domain.Session, error) {
	if err := s.rejectServerOwnedFields(in.Fields); err != nil {
		return nil, nil, err
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, ErrNameRequired
	}
	if err := s.checkPassword(in.Password); err != nil {
		return nil, nil, err
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.EmailAndPassword.HashCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Image:     in.Image,
		Role:      s.defaultRole(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &domain.Account{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		ProviderID:   domain.ProviderCredential,
		AccountID:    user.ID,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user, account); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, nil, ErrUserExists
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.createSession(ctx, user.ID, meta)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User signed up", "user_id", user.ID)
	return user, sess, nil
}

// SignInEmail verifies credentials and opens a session.
func (s *Service) SignInEmail(ctx context.Context, email, password string, meta RequestMeta) (*domain.User, *domain.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	account, err := s.repo.GetAccount(ctx, user.ID, domain.ProviderCredential)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup account: %w", err)
	}
	if account == nil || account.PasswordHash == "" {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	sess, err := s.createSession(ctx, user.ID, meta)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// GetSession resolves a signed session cookie to its session and user.
// Invalid, revoked or expired cookies yield ErrUnauthorized.
func (s *Service) GetSession(ctx context.Context, cookie string) (*domain.Session, *domain.User, error) {
	token, err := s.parseSessionCookie(cookie)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		return nil, nil, ErrUnauthorized
	}
	if sess.Expired(s.now()) {
		if err := s.repo.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired session", "session_id", sess.ID, "error", err)
		}
		return nil, nil, ErrUnauthorized
	}

	user, err := s.repo.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrUnauthorized
	}
	return sess, user, nil
}

// SignOut revokes the session behind cookie. Unknown cookies are ignored.
func (s *Service) SignOut(ctx context.Context, cookie string) error {
	token, err := s.parseSessionCookie(cookie)
	if err != nil {
		return nil
	}
	return s.repo.DeleteSession(ctx, token)
}

// UpdateUser applies a client-submitted profile update. Server-owned
// fields are rejected.
func (s *Service) UpdateUser(ctx context.Context, userID string, in UpdateUserInput) (*domain.User, error) {
	if err := s.rejectServerOwnedFields(in.Fields); err != nil {
		return nil, err
	}

	update := store.UserUpdate{Image: in.Image}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		update.Name = &name
	}
	return s.applyUpdate(ctx, userID, update)
}

// SetRole changes a user's role. Only trusted server-side callers may use it.
func (s *Service) SetRole(ctx context.Context, userID, role string) (*domain.User, error) {
	if !domain.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	user, err := s.applyUpdate(ctx, userID, store.UserUpdate{Role: &role})
	if err != nil {
		return nil, err
	}
	s.logger.Info("User role changed", "user_id", userID, "role", role)
	return user, nil
}

// SetImageCldPubID binds an uploaded image to a user. Only trusted
// server-side callers may use it.
func (s *Service) SetImageCldPubID(ctx context.Context, userID, publicID string) (*domain.User, error) {
	publicID = strings.TrimSpace(publicID)
	return s.applyUpdate(ctx, userID, store.UserUpdate{ImageCldPubID: &publicID})
}

// FindUserByEmail looks a user up by email for trusted tooling.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// SweepExpiredSessions deletes sessions that have expired.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}

func (s *Service) applyUpdate(ctx context.Context, userID string, update store.UserUpdate) (*domain.User, error) {
	user, err := s.repo.UpdateUser(ctx, userID, update)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (s *Service) createSession(ctx context.Context, userID string, meta RequestMeta) (*domain.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(s.opts.Session.ExpiresIn),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *Service) rejectServerOwnedFields(fields map[string]json.RawMessage) error {
	for name, field := range s.opts.User.AdditionalFields {
		if field.Input {
			continue
		}
		if _, ok := fields[name]; ok {
			return fieldNotAllowed(name)
		}
	}
	return nil
}

func (s *Service) defaultRole() string {
	if f, ok := s.opts.User.AdditionalFields[FieldRole]; ok && f.DefaultValue != "" {
		return f.DefaultValue
	}
	return domain.RoleStudent
}

func (s *Service) checkPassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < s.opts.EmailAndPassword.MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > s.opts.EmailAndPassword.MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
