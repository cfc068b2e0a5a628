// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/studydeck/internal/domain"
)

// ErrDuplicate is returned when an insert collides with a unique constraint.
var ErrDuplicate = errors.New("record already exists")

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("record not found")

// UserUpdate carries the user fields an update may change. Nil fields are left untouched.
type UserUpdate struct {
	Name          *string
	Image         *string
	Role          *string
	ImageCldPubID *string
}

// Repository defines the persistence adapter used by the auth service.
type Repository interface {
	// CreateUser inserts a user together with its credential account.
	CreateUser(ctx context.Context, user *domain.User, account *domain.Account) error

	// GetUser retrieves a user by ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves a user by normalized email. Returns nil, nil when absent.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateUser applies update to the user and returns the stored result.
	UpdateUser(ctx context.Context, userID string, update UserUpdate) (*domain.User, error)

	// GetAccount retrieves the user's account for providerID. Returns nil, nil when absent.
	GetAccount(ctx context.Context, userID, providerID string) (*domain.Account, error)

	// CreateSession persists a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSessionByToken retrieves a session by token. Returns nil, nil when absent.
	GetSessionByToken(ctx context.Context, token string) (*domain.Session, error)

	// DeleteSession removes the session with token.
	DeleteSession(ctx context.Context, token string) error

	// DeleteExpiredSessions removes sessions that expired before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
