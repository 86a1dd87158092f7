// Package auth issues and verifies the signed identity tokens carried in
// Authorization: Bearer headers.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 7 * 24 * time.Hour

// Identity is the claim set embedded in a token.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Role     string
	Language string
}

type tokenClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Language string `json:"language"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs identity into an HS256 JWT expiring at expiresAt.
func IssueToken(secret []byte, identity Identity, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		Email:    identity.Email,
		Username: identity.Username,
		Role:     identity.Role,
		Language: identity.Language,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken checks signature and expiry and returns the embedded identity.
// Every failure mode maps to ErrInvalidToken or ErrExpiredToken so callers
// never have to distinguish malformed from tampered tokens.
func ParseToken(secret []byte, tokenString string) (Identity, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
		Language: claims.Language,
	}, nil
}
