// Package authpw provides email/password credentials: registration
// applications and approved-account login.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"mindmapai/api/internal/store"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 6

var (
	ErrMissingFields      = errors.New("email, username, and password are required")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrAlreadyRegistered  = errors.New("email or username already in use")
	ErrPendingApplication = errors.New("email or username already has a pending application")
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotApproved        = errors.New("account is not approved yet")
)

// UserStore is the storage surface the credential service needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
	ApplicationExists(ctx context.Context, email, username string) (bool, error)
	InsertApplication(ctx context.Context, application store.Application) (store.Application, error)
}

// Service validates registration submissions and authenticates logins.
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// HashPassword produces a salted bcrypt hash. Deliberately slow.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches hash.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// RegisterRequest contains registration parameters.
type RegisterRequest struct {
	Email    string
	Username string
	Password string
	Reason   string
}

// Register creates a pending application. The exists pre-checks give the
// common case a precise 409 message; a concurrent submission that slips past
// them is caught by the unique constraint and reported the same way.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.Application, error) {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" || req.Password == "" {
		return store.Application{}, ErrMissingFields
	}
	if len(req.Password) < MinPasswordLength {
		return store.Application{}, ErrPasswordTooShort
	}

	taken, err := s.store.UserExists(ctx, email, username)
	if err != nil {
		return store.Application{}, err
	}
	if taken {
		return store.Application{}, ErrAlreadyRegistered
	}

	applied, err := s.store.ApplicationExists(ctx, email, username)
	if err != nil {
		return store.Application{}, err
	}
	if applied {
		return store.Application{}, ErrPendingApplication
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return store.Application{}, err
	}

	application := store.Application{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		application.Reason = &reason
	}

	created, err := s.store.InsertApplication(ctx, application)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Application{}, ErrPendingApplication
		}
		return store.Application{}, err
	}
	return created, nil
}

// Login authenticates an approved account. Status is checked before the
// password so a pending account learns it is unapproved rather than guessing
// at credentials.
func (s *Service) Login(ctx context.Context, email, password string) (store.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return store.User{}, ErrMissingFields
	}

	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, err
	}

	if user.Status != store.StatusApproved {
		return store.User{}, ErrNotApproved
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return store.User{}, ErrInvalidCredentials
	}

	return user, nil
}
