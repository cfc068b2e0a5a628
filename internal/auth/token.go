package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ashureev/studydeck/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

// sessionClaims is the payload of the session cookie. The opaque session
// token is looked up server-side so sign-out revokes the cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
	Token string `json:"tok"`
}

func generateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) signSessionCookie(sess *domain.Session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.BaseURL,
			Subject:   sess.UserID,
			ID:        sess.ID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		Token: sess.Token,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// parseSessionCookie verifies the cookie signature and returns the session token.
func (s *Service) parseSessionCookie(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.opts.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrUnauthorized
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Token == "" {
		return "", ErrUnauthorized
	}
	return claims.Token, nil
}
