// Package apperr defines the error values shared by the repository, service
// and HTTP layers. Handlers translate them into status codes with Status and
// into stable machine-readable codes with Code.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrDuplicateUsername is returned when registering a username that is taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountBanned      = errors.New("account is banned")
	ErrAccountPending     = errors.New("account is waiting for admin approval")

	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrAccessDenied = errors.New("access denied")

	ErrUserNotFound  = errors.New("user not found")
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrProvider wraps every failure of the generative-AI call.
	ErrProvider = errors.New("analysis provider error")
	// ErrProviderTimeout is joined with ErrProvider when the call ran out of time.
	ErrProviderTimeout = errors.New("analysis provider timed out")
	// ErrSchemaViolation means the provider answered but the reply is not a
	// valid analysis document.
	ErrSchemaViolation = errors.New("analysis result does not match schema")

	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status maps an error to the HTTP status the API answers with. Unknown
// errors become 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDuplicateUsername):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountBanned), errors.Is(err, ErrAccountPending),
		errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrProviderTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable identifier for err, suitable for clients that need to
// branch on the failure kind without parsing messages.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrDuplicateUsername):
		return "duplicate_username"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountBanned):
		return "account_banned"
	case errors.Is(err, ErrAccountPending):
		return "account_pending"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal_error"
	}
}
