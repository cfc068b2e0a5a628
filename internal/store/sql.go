package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/studydeck/internal/config"
	"github.com/ashureev/studydeck/internal/domain"
	"github.com/ashureev/studydeck/internal/shared"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLStore implements Repository on database/sql for every supported driver.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

var _ Repository = (*SQLStore)(nil)

// Open connects to the database for driver ("pg", "mysql" or "sqlite").
// The schema is not created; call Migrate.
func Open(driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLStore{db: db, dialect: d}, nil
}

// Driver returns the configured driver name.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// Migrate creates the users, accounts and sessions tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateUser inserts a user and its account in one transaction.
func (s *SQLStore) CreateUser(ctx context.Context, user *domain.User, account *domain.Account) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back create user", "error", rbErr)
			}
		}
	}()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO users (id, email, email_verified, name, image, role, image_cld_pub_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Email, user.EmailVerified, user.Name, nullString(user.Image),
		user.Role, nullString(user.ImageCldPubID), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if account != nil {
		_, err = tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO accounts (id, user_id, provider_id, account_id, password, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			account.ID, account.UserID, account.ProviderID, account.AccountID,
			account.PasswordHash, account.CreatedAt.Unix(), account.UpdatedAt.Unix(),
		)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert account: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, email_verified, name, image, role, image_cld_pub_id, created_at, updated_at`

// GetUser retrieves a user by their ID.
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	return scanUser(row)
}

// UpdateUser applies the non-nil fields of update.
func (s *SQLStore) UpdateUser(ctx context.Context, userID string, update UserUpdate) (*domain.User, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().Unix()}

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Image != nil {
		sets = append(sets, "image = ?")
		args = append(args, *update.Image)
	}
	if update.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, *update.Role)
	}
	if update.ImageCldPubID != nil {
		sets = append(sets, "image_cld_pub_id = ?")
		args = append(args, *update.ImageCldPubID)
	}
	args = append(args, userID)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateUser affected 0 rows", "user_id", userID)
	}

	// MySQL reports unchanged rows as unaffected, so existence is decided by the read.
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// GetAccount retrieves the account linking userID to providerID.
func (s *SQLStore) GetAccount(ctx context.Context, userID, providerID string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, user_id, provider_id, account_id, password, created_at, updated_at
		FROM accounts WHERE user_id = ? AND provider_id = ?`), userID, providerID)

	var acc domain.Account
	var password sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&acc.ID, &acc.UserID, &acc.ProviderID, &acc.AccountID, &password, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}

	acc.PasswordHash = password.String
	acc.CreatedAt = time.Unix(createdAt, 0)
	acc.UpdatedAt = time.Unix(updatedAt, 0)
	return &acc, nil
}

// CreateSession persists a new session.
func (s *SQLStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO sessions (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		session.ID, session.Token, session.UserID, session.ExpiresAt.Unix(),
		session.IPAddress, session.UserAgent, session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByToken retrieves a session by its token.
func (s *SQLStore) GetSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at
		FROM sessions WHERE token = ?`), token)

	var sess domain.Session
	var ip, ua sql.NullString
	var expiresAt, createdAt, updatedAt int64
	err := row.Scan(&sess.ID, &sess.Token, &sess.UserID, &expiresAt, &ip, &ua, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.IPAddress = ip.String
	sess.UserAgent = ua.String
	sess.ExpiresAt = time.Unix(expiresAt, 0)
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// DeleteSession removes a session by token. Deleting a missing session is not an error.
func (s *SQLStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM sessions WHERE token = ?`), token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry is at or before now.
func (s *SQLStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var image, pubID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.Email, &user.EmailVerified, &user.Name, &image,
		&user.Role, &pubID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	if image.Valid {
		user.Image = &image.String
	}
	if pubID.Valid {
		user.ImageCldPubID = &pubID.String
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// sqliteDSN appends the connection pragmas to path, which may already carry
// its own query parameters.
func sqliteDSN(path string) string {
	// WAL and busy timeout for concurrent readers; foreign keys for cascades.
	const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
