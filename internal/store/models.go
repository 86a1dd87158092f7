package store

import (
	"fmt"
	"time"
)

// Status is an account or application lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus rejects unrecognized status values at the boundary so they are
// never persisted.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(value), nil
	default:
		return "", fmt.Errorf("invalid status %q", value)
	}
}

// Language is a user's preferred locale.
type Language string

const (
	LanguageZH Language = "zh"
	LanguageEN Language = "en"
)

func ParseLanguage(value string) (Language, error) {
	switch Language(value) {
	case LanguageZH, LanguageEN:
		return Language(value), nil
	default:
		return "", fmt.Errorf("invalid language %q", value)
	}
}

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	Status       Status
	Language     Language
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Application struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Reason       *string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type MindMap struct {
	ID          string
	UserID      *string
	Title       string
	Description *string
	Content     string
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
