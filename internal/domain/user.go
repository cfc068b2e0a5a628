// Package domain contains core domain types for the studydeck backend.
package domain

import (
	"regexp"
	"time"
)

// RoleStudent is the role every new user starts with.
const RoleStudent = "student"

var rolePattern = regexp.MustCompile(`^[a-z][a-z_]{0,31}$`)

// User is an authenticated account holder.
//
// Role and ImageCldPubID are server-owned: they are never read from
// client-submitted input and change only through trusted code paths.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Name          string    `json:"name"`
	Image         *string   `json:"image"`
	Role          string    `json:"role"`
	ImageCldPubID *string   `json:"imageCldPubId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ValidRole reports whether role is a well-formed role name.
func ValidRole(role string) bool {
	return rolePattern.MatchString(role)
}

// ProviderCredential identifies email+password accounts.
const ProviderCredential = "credential"

// Account links a user to a credential strategy.
type Account struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ProviderID   string    `json:"providerId"`
	AccountID    string    `json:"accountId"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
