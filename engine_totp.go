package dnsgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/dnsgate/internal/stores"
)

// SetupTOTP generates a secret for the caller and parks it as pending. The
// secret is not enforced at login until EnableTOTP confirms it.
//
// SetupTOTP returns ErrTOTPAlreadyEnabled when an active secret exists.
func (e *Engine) SetupTOTP(ctx context.Context, id *Identity) (*TOTPSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return nil, err
	}
	active, err := e.activeTOTPSecret(ctx, u)
	if err != nil {
		return nil, storeErr(err)
	}
	if active != "" {
		return nil, ErrTOTPAlreadyEnabled
	}

	setup, err := e.totp.Generate(u.Username)
	if err != nil {
		return nil, err
	}
	if err := e.totpStore.SavePending(ctx, u.Username, setup.Secret, e.config.TOTP.PendingTTL); err != nil {
		return nil, storeErr(err)
	}
	return &setup, nil
}

// EnableTOTP activates the pending secret once code proves possession.
func (e *Engine) EnableTOTP(ctx context.Context, id *Identity, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: code required", ErrValidation)
	}
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return err
	}
	pending, err := e.totpStore.Pending(ctx, u.Username)
	if err != nil {
		return storeErr(err)
	}
	if pending == "" {
		return ErrTOTPNotConfigured
	}
	if !e.consumeTOTP(ctx, u.Username, code, pending) {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, u.Username, u.Role, ErrTOTPInvalid, func() map[string]string {
			return map[string]string{"stage": "enable"}
		})
		return ErrTOTPInvalid
	}

	if err := e.setActiveTOTPSecret(ctx, u, pending); err != nil {
		return storeErr(err)
	}
	if err := e.totpStore.DeletePending(ctx, u.Username); err != nil {
		e.logger.Warn(ctx, "pending totp cleanup failed", "username", u.Username, "error", err)
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, u.Username, u.Role, nil, nil)
	return nil
}

// DisableTOTP removes the active secret. A current code is required.
func (e *Engine) DisableTOTP(ctx context.Context, id *Identity, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: code required", ErrValidation)
	}
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return err
	}
	active, err := e.activeTOTPSecret(ctx, u)
	if err != nil {
		return storeErr(err)
	}
	if active == "" {
		return ErrTOTPNotConfigured
	}
	if !e.consumeTOTP(ctx, u.Username, code, active) {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, u.Username, u.Role, ErrTOTPInvalid, func() map[string]string {
			return map[string]string{"stage": "disable"}
		})
		return ErrTOTPInvalid
	}

	if err := e.setActiveTOTPSecret(ctx, u, ""); err != nil {
		return storeErr(err)
	}
	if err := e.totpStore.ResetSteps(ctx, u.Username); err != nil {
		e.logger.Warn(ctx, "totp step reset failed", "username", u.Username, "error", err)
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, u.Username, u.Role, nil, nil)
	return nil
}

// TOTPStatus reports whether the caller has an active secret.
func (e *Engine) TOTPStatus(ctx context.Context, id *Identity) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return false, err
	}
	active, err := e.activeTOTPSecret(ctx, u)
	if err != nil {
		return false, storeErr(err)
	}
	return active != "", nil
}

// setActiveTOTPSecret stores or, with an empty secret, clears the active
// secret of u.
func (e *Engine) setActiveTOTPSecret(ctx context.Context, u *stores.User, secret string) error {
	if u.Username == AdminUsername {
		if secret == "" {
			return e.totpStore.DeleteAdminSecret(ctx)
		}
		return e.totpStore.SetAdminSecret(ctx, secret)
	}
	u.TOTPSecret = secret
	return e.users.Put(ctx, u)
}

// consumeTOTP checks code against secret and spends its time step, so each
// step is accepted at most once per user. A store failure rejects the code.
func (e *Engine) consumeTOTP(ctx context.Context, username, code, secret string) bool {
	step, ok := e.totp.Match(code, secret)
	if !ok {
		return false
	}
	window := time.Duration(2*e.config.TOTP.Skew+2) * time.Duration(e.config.TOTP.Period) * time.Second
	claimed, err := e.totpStore.ClaimStep(ctx, username, step, window)
	if err != nil {
		e.logger.Warn(ctx, "totp step claim failed", "username", username, "error", err)
		return false
	}
	if !claimed {
		e.logger.Warn(ctx, "totp code reused", "username", username)
	}
	return claimed
}
