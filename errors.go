package dnsgate

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrValidation is returned for malformed or missing request fields.
	ErrValidation = errors.New("invalid request")
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the lockout cooldown runs.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrRateLimited is returned when a client exceeds an endpoint window.
	ErrRateLimited = errors.New("too many requests")
	// ErrSessionInvalid is returned for expired, forged, malformed or revoked tokens.
	ErrSessionInvalid = errors.New("invalid session")
	// ErrUnauthorized is returned when a request carries no credentials at all.
	ErrUnauthorized = errors.New("authentication required")
	// ErrForbidden is returned when the caller's role does not allow the route.
	ErrForbidden = errors.New("forbidden")
	// ErrAccountNotConfigured is returned when no upstream credential resolves.
	ErrAccountNotConfigured = errors.New("account not configured")
	// ErrZoneNotAllowed is returned when a zone is outside the caller's allow-list.
	ErrZoneNotAllowed = errors.New("zone not allowed")
	// ErrAccountPending is returned for invited users who have not completed setup.
	ErrAccountPending = errors.New("account setup not completed")
	// ErrRegistrationClosed is returned by Register when self-registration is off.
	ErrRegistrationClosed = errors.New("registration disabled")
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSetupTokenInvalid is returned when a setup token does not match.
	ErrSetupTokenInvalid = errors.New("invalid setup token")
	// ErrTOTPRequired signals that login needs a second round with a code.
	ErrTOTPRequired = errors.New("totp required")
	// ErrTOTPInvalid is returned for a wrong or expired code.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPNotConfigured is returned when no active or pending secret exists.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPAlreadyEnabled is returned by setup when a secret is active.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrPasskeyDisabled is returned when passkeys are not configured.
	ErrPasskeyDisabled = errors.New("passkeys not enabled")
	// ErrPasskeyInvalid is returned for any failed passkey ceremony.
	ErrPasskeyInvalid = errors.New("passkey verification failed")
	// ErrUpstreamUnavailable is returned when the upstream provider cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")
	// ErrUpstreamCredentialRejected is returned when the provider rejects a credential.
	ErrUpstreamCredentialRejected = errors.New("upstream credential rejected")
	// ErrStoreUnavailable is returned when the key/value store fails.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrServerMisconfigured is returned when a required server secret is missing.
	ErrServerMisconfigured = errors.New("server misconfigured")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RetryAfterError decorates [ErrAccountLocked] and [ErrRateLimited] with the
// number of seconds the caller has to wait. Until is the instant the wait
// ends.
type RetryAfterError struct {
	Err        error
	RetryAfter int
	Until      time.Time
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %ds)", e.Err, e.RetryAfter)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter extracts the wait in seconds from err, or 0.
func RetryAfter(err error) int {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter
	}
	return 0
}

// RetryUntil returns the instant the wait carried by err ends, or the zero
// time.
func RetryUntil(err error) time.Time {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.Until
	}
	return time.Time{}
}

func itoa(n int) string { return strconv.Itoa(n) }

// ErrorStatus maps err to its HTTP status. Unknown errors map to 500.
func ErrorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrTOTPNotConfigured),
		errors.Is(err, ErrTOTPAlreadyEnabled),
		errors.Is(err, ErrPasskeyDisabled),
		errors.Is(err, ErrUpstreamCredentialRejected):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTOTPInvalid),
		errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrSetupTokenInvalid),
		errors.Is(err, ErrPasskeyInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrAccountNotConfigured),
		errors.Is(err, ErrZoneNotAllowed),
		errors.Is(err, ErrAccountPending),
		errors.Is(err, ErrRegistrationClosed),
		errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show the caller. Internal
// failures collapse to a generic text.
func PublicMessage(err error) string {
	if ErrorStatus(err) == http.StatusInternalServerError {
		if errors.Is(err, ErrServerMisconfigured) {
			return ErrServerMisconfigured.Error()
		}
		return "internal error"
	}
	if errors.Is(err, ErrValidation) {
		return err.Error()
	}
	for _, sentinel := range publicSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

var publicSentinels = []error{
	ErrValidation, ErrInvalidCredentials, ErrAccountLocked, ErrRateLimited,
	ErrSessionInvalid, ErrUnauthorized, ErrForbidden, ErrAccountNotConfigured,
	ErrZoneNotAllowed, ErrAccountPending, ErrRegistrationClosed, ErrUserExists,
	ErrNotFound, ErrSetupTokenInvalid, ErrTOTPInvalid, ErrTOTPNotConfigured,
	ErrTOTPAlreadyEnabled, ErrPasskeyDisabled, ErrPasskeyInvalid,
	ErrUpstreamUnavailable, ErrUpstreamCredentialRejected, ErrStoreUnavailable,
}
