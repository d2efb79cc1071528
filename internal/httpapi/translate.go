package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	appvalidator "fintrack/internal/validator"
)

// StatusError carries an explicit HTTP status through error returns.
// The translator honors the status instead of defaulting to 500.
type StatusError struct {
	Status  int
	Key     ErrorKey
	Message string
}

func (e *StatusError) Error() string { return e.Message }

// NewStatusError builds a StatusError from a table key.
func NewStatusError(key ErrorKey, message string) *StatusError {
	resolved, entry := Lookup(key)
	if message == "" {
		message = entry.Message
	}
	return &StatusError{Status: entry.Status, Key: resolved, Message: message}
}

// Translate maps an internal error to a client-visible response and
// HTTP status. It matches known shapes in order, always produces a
// response (generic 500 for anything unrecognized) and always logs the
// original error first. Pure formatting: no retries, no recovery.
func Translate(ctx context.Context, err error) (Response, int) {
	slog.ErrorContext(ctx, "Translating error to response", "error", err)

	// schema validation: field errors joined by comma
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp := NewErrorResponse(ValidationInvalidFormat, appvalidator.JoinedFieldErrors(err), nil)
		return resp, StatusFor(ValidationInvalidFormat)
	}

	// uniqueness-constraint violation
	if errors.Is(err, storage.ErrDuplicate) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return NewErrorResponse(ValidationDuplicate, "", nil), StatusFor(ValidationDuplicate)
	}

	// malformed identifier
	if errors.Is(err, core.ErrInvalidLocalID) {
		return NewErrorResponse(ValidationInvalidID, "", nil), StatusFor(ValidationInvalidID)
	}

	// bounded offline queue at capacity
	if errors.Is(err, storage.ErrQueueFull) {
		return NewErrorResponse(SyncQueueFull, "", nil), StatusFor(SyncQueueFull)
	}

	// record lookup misses
	if errors.Is(err, storage.ErrNotFound) {
		return NewErrorResponse(NotFoundResource, "", nil), StatusFor(NotFoundResource)
	}

	// bearer token failures: expired before the generic invalid match,
	// jwt wraps expiry inside ErrTokenInvalidClaims
	if errors.Is(err, jwt.ErrTokenExpired) {
		return NewErrorResponse(AuthTokenExpired, "", nil), StatusFor(AuthTokenExpired)
	}
	if isTokenError(err) {
		return NewErrorResponse(AuthTokenInvalid, "", nil), StatusFor(AuthTokenInvalid)
	}

	// errors that declared their own status
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return NewErrorResponse(statusErr.Key, statusErr.Message, nil), statusErr.Status
	}

	message := err.Error()
	if message == "" {
		message = "An unexpected error occurred"
	}
	return NewErrorResponse(ServerError, message, nil), StatusFor(ServerError)
}

func isTokenError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenNotValidYet,
		jwt.ErrSignatureInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
