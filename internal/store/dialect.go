package store

import (
	"strconv"
	"strings"

	"github.com/ashureev/studydeck/internal/config"
)

type dialect struct {
	name       string
	driverName string
	schema     []string
}

var dialects = map[string]dialect{
	config.DriverPostgres: {
		name:       config.DriverPostgres,
		driverName: "pgx",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id               TEXT PRIMARY KEY,
				email            TEXT NOT NULL UNIQUE,
				email_verified   BOOLEAN NOT NULL DEFAULT FALSE,
				name             TEXT NOT NULL,
				image            TEXT,
				role             TEXT NOT NULL DEFAULT 'student',
				image_cld_pub_id TEXT,
				created_at       BIGINT NOT NULL,
				updated_at       BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS accounts (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider_id TEXT NOT NULL,
				account_id  TEXT NOT NULL,
				password    TEXT,
				created_at  BIGINT NOT NULL,
				updated_at  BIGINT NOT NULL,
				UNIQUE (provider_id, account_id)
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				token      TEXT NOT NULL UNIQUE,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				expires_at BIGINT NOT NULL,
				ip_address TEXT,
				user_agent TEXT,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		},
	},
	config.DriverMySQL: {
		name:       config.DriverMySQL,
		driverName: "mysql",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id               VARCHAR(64) PRIMARY KEY,
				email            VARCHAR(320) NOT NULL UNIQUE,
				email_verified   BOOLEAN NOT NULL DEFAULT FALSE,
				name             VARCHAR(255) NOT NULL,
				image            TEXT,
				role             VARCHAR(32) NOT NULL DEFAULT 'student',
				image_cld_pub_id VARCHAR(255),
				created_at       BIGINT NOT NULL,
				updated_at       BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS accounts (
				id          VARCHAR(64) PRIMARY KEY,
				user_id     VARCHAR(64) NOT NULL,
				provider_id VARCHAR(64) NOT NULL,
				account_id  VARCHAR(320) NOT NULL,
				password    TEXT,
				created_at  BIGINT NOT NULL,
				updated_at  BIGINT NOT NULL,
				UNIQUE KEY uq_accounts_provider (provider_id, account_id),
				CONSTRAINT fk_accounts_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id         VARCHAR(64) PRIMARY KEY,
				token      VARCHAR(255) NOT NULL UNIQUE,
				user_id    VARCHAR(64) NOT NULL,
				expires_at BIGINT NOT NULL,
				ip_address VARCHAR(64),
				user_agent TEXT,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL,
				INDEX idx_sessions_expires_at (expires_at),
				CONSTRAINT fk_sessions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
		},
	},
	config.DriverSQLite: {
		name:       config.DriverSQLite,
		driverName: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id               TEXT PRIMARY KEY,
				email            TEXT NOT NULL UNIQUE,
				email_verified   INTEGER NOT NULL DEFAULT 0,
				name             TEXT NOT NULL,
				image            TEXT,
				role             TEXT NOT NULL DEFAULT 'student',
				image_cld_pub_id TEXT,
				created_at       INTEGER NOT NULL,
				updated_at       INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS accounts (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider_id TEXT NOT NULL,
				account_id  TEXT NOT NULL,
				password    TEXT,
				created_at  INTEGER NOT NULL,
				updated_at  INTEGER NOT NULL,
				UNIQUE (provider_id, account_id)
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				token      TEXT NOT NULL UNIQUE,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				expires_at INTEGER NOT NULL,
				ip_address TEXT,
				user_agent TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		},
	},
}

// rebind rewrites ? placeholders to the dialect's bind style.
func (d dialect) rebind(query string) string {
	if d.name != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
