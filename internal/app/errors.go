package app

import (
	"database/sql"
	"errors"
	"net/http"

	"mindmapai/api/internal/auth"
	"mindmapai/api/internal/authpw"
	"mindmapai/api/internal/rbac"
	"mindmapai/api/internal/store"
)

// DomainError carries an HTTP status with a client-safe message. Debug holds
// extra detail that is only exposed outside production.
type DomainError struct {
	Status  int
	Message string
	Debug   string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func domainError(status int, message string) *DomainError {
	return &DomainError{Status: status, Message: message}
}

// mapError translates service errors into a status, a client message, and an
// optional debug detail.
func mapError(err error) (status int, message, debug string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message, domainErr.Debug
	}

	switch {
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrPasswordTooShort):
		return http.StatusBadRequest, err.Error(), ""
	case errors.Is(err, authpw.ErrAlreadyRegistered),
		errors.Is(err, authpw.ErrPendingApplication),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, err.Error(), ""
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error(), ""
	case errors.Is(err, authpw.ErrNotApproved):
		return http.StatusForbidden, err.Error(), ""
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "unauthorized", ""
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "not found", ""
	}
	return http.StatusInternalServerError, "internal server error", err.Error()
}

// decisionError converts a non-allow access decision into its HTTP shape.
// Resources hidden from the caller answer 404 so existence leaks nothing.
func decisionError(d rbac.Decision, resource string) *DomainError {
	switch d {
	case rbac.Unauthenticated:
		return domainError(http.StatusUnauthorized, "authentication required")
	case rbac.Forbidden:
		return domainError(http.StatusForbidden, "admin access required")
	default:
		return domainError(http.StatusNotFound, resource+" not found")
	}
}
