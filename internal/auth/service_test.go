package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/studydeck/internal/config"
	"github.com/ashureev/studydeck/internal/domain"
	"github.com/ashureev/studydeck/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func newTestRepo(t *testing.T) *store.SQLStore {
	t.Helper()
	repo, err := store.Open(config.DriverSQLite, filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	opts := NewOptions(testConfig())
	opts.EmailAndPassword.HashCost = bcrypt.MinCost
	svc, err := New(opts, newTestRepo(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return svc
}

func signUp(t *testing.T, svc *Service, email string) (*domain.User, *domain.Session) {
	t.Helper()
	user, sess, err := svc.SignUpEmail(context.Background(), SignUpInput{
		Email:    email,
		Password: "correct horse",
		Name:     "Ada",
	}, RequestMeta{IPAddress: "127.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("SignUpEmail failed: %v", err)
	}
	return user, sess
}

func TestSignUpDefaultsRoleToStudent(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	user, sess := signUp(t, svc, "  Ada@Example.com ")
	if user.Email != "ada@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if user.Role != domain.RoleStudent {
		t.Errorf("expected role student, got %q", user.Role)
	}
	if user.ImageCldPubID != nil {
		t.Errorf("expected no image public id, got %v", *user.ImageCldPubID)
	}
	if sess.UserID != user.ID || sess.IPAddress != "127.0.0.1" {
		t.Errorf("unexpected session %+v", sess)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != time.Hour {
		t.Errorf("expected 1h session lifetime, got %v", got)
	}
}

func TestSignUpRejectsServerOwnedFields(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	for _, field := range []string{FieldRole, FieldImageCldPubID} {
		t.Run(field, func(t *testing.T) {
			_, _, err := svc.SignUpEmail(context.Background(), SignUpInput{
				Email:    field + "@example.com",
				Password: "correct horse",
				Name:     "Mallory",
				Fields:   map[string]json.RawMessage{field: json.RawMessage(`"admin"`)},
			}, RequestMeta{})

			var authErr *Error
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if authErr.Status != 400 || authErr.Message != field+" is not allowed to be set" {
				t.Fatalf("unexpected error %+v", authErr)
			}
			if _, err := svc.FindUserByEmail(context.Background(), field+"@example.com"); !errors.Is(err, ErrUserNotFound) {
				t.Fatalf("user must not be created, got %v", err)
			}
		})
	}
}

func TestSignUpValidation(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	signUp(t, svc, "taken@example.com")

	tests := []struct {
		name string
		in   SignUpInput
		want error
	}{
		{"bad email", SignUpInput{Email: "not-an-email", Password: "correct horse", Name: "A"}, ErrInvalidEmail},
		{"short password", SignUpInput{Email: "a@example.com", Password: "short", Name: "A"}, ErrPasswordTooShort},
		{"long password", SignUpInput{Email: "a@example.com", Password: string(make([]byte, 73)), Name: "A"}, ErrPasswordTooLong},
		{"missing name", SignUpInput{Email: "a@example.com", Password: "correct horse", Name: "  "}, ErrNameRequired},
		{"existing email", SignUpInput{Email: "TAKEN@example.com", Password: "correct horse", Name: "A"}, ErrUserExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SignUpEmail(context.Background(), tt.in, RequestMeta{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSignInAndSessionRoundTrip(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	created, _ := signUp(t, svc, "ada@example.com")

	if _, _, err := svc.SignInEmail(ctx, "ada@example.com", "wrong password", RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.SignInEmail(ctx, "nobody@example.com", "correct horse", RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	user, sess, err := svc.SignInEmail(ctx, "ADA@example.com", "correct horse", RequestMeta{})
	if err != nil {
		t.Fatalf("SignInEmail failed: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, user.ID)
	}

	cookie, err := svc.signSessionCookie(sess)
	if err != nil {
		t.Fatalf("signSessionCookie failed: %v", err)
	}
	gotSess, gotUser, err := svc.GetSession(ctx, cookie)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gotSess.ID != sess.ID || gotUser.ID != created.ID {
		t.Fatalf("unexpected session/user %+v %+v", gotSess, gotUser)
	}

	if err := svc.SignOut(ctx, cookie); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, _, err := svc.GetSession(ctx, cookie); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after sign-out, got %v", err)
	}
}

func TestGetSessionRejectsForgedAndExpiredCookies(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	_, sess := signUp(t, svc, "ada@example.com")

	if _, _, err := svc.GetSession(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage cookie, got %v", err)
	}

	other := newTestService(t)
	other.opts.Secret = "another-secret"
	forged, err := other.signSessionCookie(sess)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := svc.GetSession(ctx, forged); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign signature, got %v", err)
	}

	cookie, err := svc.signSessionCookie(sess)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	svc.now = func() time.Time { return sess.ExpiresAt.Add(time.Second) }
	if _, _, err := svc.GetSession(ctx, cookie); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired session, got %v", err)
	}
}

func TestUpdateUserOnlyAcceptsClientFields(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	user, _ := signUp(t, svc, "ada@example.com")

	_, err := svc.UpdateUser(ctx, user.ID, UpdateUserInput{
		Fields: map[string]json.RawMessage{FieldRole: json.RawMessage(`"admin"`)},
	})
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Code != "FIELD_NOT_ALLOWED" {
		t.Fatalf("expected FIELD_NOT_ALLOWED, got %v", err)
	}

	name := "Ada Lovelace"
	updated, err := svc.UpdateUser(ctx, user.ID, UpdateUserInput{Name: &name})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if updated.Name != name || updated.Role != domain.RoleStudent {
		t.Fatalf("unexpected user %+v", updated)
	}
}

func TestTrustedPathsSetServerOwnedFields(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	user, _ := signUp(t, svc, "ada@example.com")

	updated, err := svc.SetRole(ctx, user.ID, "instructor")
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if updated.Role != "instructor" {
		t.Fatalf("expected instructor, got %q", updated.Role)
	}

	updated, err = svc.SetImageCldPubID(ctx, user.ID, "avatars/ada")
	if err != nil {
		t.Fatalf("SetImageCldPubID failed: %v", err)
	}
	if updated.ImageCldPubID == nil || *updated.ImageCldPubID != "avatars/ada" {
		t.Fatalf("unexpected image public id %v", updated.ImageCldPubID)
	}

	if _, err := svc.SetRole(ctx, user.ID, "Not A Role"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := svc.SetRole(ctx, "missing", "instructor"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()
	_, sess := signUp(t, svc, "ada@example.com")

	if n, err := svc.SweepExpiredSessions(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing to sweep, got %d, %v", n, err)
	}

	svc.now = func() time.Time { return sess.ExpiresAt.Add(time.Minute) }
	if n, err := svc.sweepWithRetry(ctx); err != nil || n != 1 {
		t.Fatalf("expected one swept session, got %d, %v", n, err)
	}
}
