package dnsgate

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginLocked         = "login_locked"
	auditEventAdminBootstrapped   = "admin_bootstrapped"
	auditEventHashUpgraded        = "password_hash_upgraded"
	auditEventTOTPRequired        = "totp_required"
	auditEventTOTPFailure         = "totp_failure"
	auditEventTOTPEnabled         = "totp_enabled"
	auditEventTOTPDisabled        = "totp_disabled"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshRevoked      = "refresh_revoked"
	auditEventLogout              = "logout"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
	auditEventRegistration        = "registration"
	auditEventInvitation          = "invitation"
	auditEventAccountSetup        = "account_setup"
	auditEventPasswordChange      = "password_change"
	auditEventUserUpdated         = "user_updated"
	auditEventUserDeleted         = "user_deleted"
	auditEventSlotCreated         = "slot_created"
	auditEventSlotDeleted         = "slot_deleted"
	auditEventSlotsMigrated       = "slots_migrated"
	auditEventPasskeyRegistered   = "passkey_registered"
	auditEventPasskeyRemoved      = "passkey_removed"
	auditEventPasskeyLogin        = "passkey_login"
	auditEventAccessDenied        = "access_denied"
	auditEventClientModeForwarded = "client_mode"
)

// AuditErrorCode is the stable error label stored on audit events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrNotConfigured      AuditErrorCode = "account_not_configured"
	auditErrZoneNotAllowed     AuditErrorCode = "zone_not_allowed"
	auditErrPending            AuditErrorCode = "account_pending"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrTOTPInvalid        AuditErrorCode = "totp_invalid"
	auditErrPasskeyInvalid     AuditErrorCode = "passkey_invalid"
	auditErrUpstream           AuditErrorCode = "upstream_unavailable"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrMisconfigured      AuditErrorCode = "misconfigured"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	role string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Username:  username,
		Role:      role,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, endpoint string, retryAfter int) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"endpoint":    endpoint,
			"retry_after": itoa(retryAfter),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrSetupTokenInvalid):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrRegistrationClosed):
		return auditErrForbidden
	case errors.Is(err, ErrAccountNotConfigured):
		return auditErrNotConfigured
	case errors.Is(err, ErrZoneNotAllowed):
		return auditErrZoneNotAllowed
	case errors.Is(err, ErrAccountPending):
		return auditErrPending
	case errors.Is(err, ErrUserExists):
		return auditErrDuplicate
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrTOTPInvalid),
		errors.Is(err, ErrTOTPNotConfigured):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrPasskeyInvalid):
		return auditErrPasskeyInvalid
	case errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrUpstreamCredentialRejected):
		return auditErrUpstream
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrServerMisconfigured):
		return auditErrMisconfigured
	default:
		return auditErrInternal
	}
}
