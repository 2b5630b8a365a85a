package dnsgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/MrEthical07/dnsgate/passkey"
	"github.com/go-webauthn/webauthn/protocol"
)

// PasskeyRegisterOptions starts a registration ceremony for the caller.
func (e *Engine) PasskeyRegisterOptions(ctx context.Context, id *Identity) (*protocol.CredentialCreation, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.passkeys == nil {
		return nil, ErrPasskeyDisabled
	}
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return nil, err
	}
	opts, err := e.passkeys.BeginRegistration(ctx, u.Username)
	if err != nil {
		return nil, mapPasskeyError(err)
	}
	return opts, nil
}

// PasskeyRegisterVerify finishes a registration ceremony and stores the
// new credential under name.
func (e *Engine) PasskeyRegisterVerify(ctx context.Context, id *Identity, name string, body []byte) (*PasskeyView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.passkeys == nil {
		return nil, ErrPasskeyDisabled
	}
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: credential required", ErrValidation)
	}

	cred, err := e.passkeys.FinishRegistration(ctx, u.Username, strings.TrimSpace(name), body)
	if err != nil {
		e.emitAudit(ctx, auditEventPasskeyRegistered, false, u.Username, u.Role, ErrPasskeyInvalid, nil)
		return nil, mapPasskeyError(err)
	}

	e.metricInc(MetricPasskeyRegistered)
	e.emitAudit(ctx, auditEventPasskeyRegistered, true, u.Username, u.Role, nil, nil)
	return &PasskeyView{
		ID:         cred.ID,
		Name:       cred.Name,
		CreatedAt:  cred.CreatedAt,
		LastUsedAt: cred.LastUsedAt,
		Synced:     cred.BackupEligible,
	}, nil
}

// PasskeyLoginOptions starts an authentication ceremony. An empty username
// asks for a discoverable credential.
func (e *Engine) PasskeyLoginOptions(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.passkeys == nil {
		return nil, ErrPasskeyDisabled
	}
	if strings.TrimSpace(username) != "" {
		var err error
		if username, err = NormalizeUsername(username); err != nil {
			return nil, err
		}
	}
	opts, err := e.passkeys.BeginLogin(ctx, username)
	if err != nil {
		e.metricInc(MetricPasskeyFailure)
		return nil, mapPasskeyError(err)
	}
	return opts, nil
}

// PasskeyLoginVerify checks a signed assertion and logs the owner in. A
// passkey counts as a full authentication: it does not ask for TOTP and it
// clears the lockout counter.
func (e *Engine) PasskeyLoginVerify(ctx context.Context, body []byte) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.passkeys == nil {
		return nil, ErrPasskeyDisabled
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: assertion required", ErrValidation)
	}

	username, err := e.passkeys.FinishLogin(ctx, body)
	if err != nil {
		if errors.Is(err, passkey.ErrCounterReplay) {
			e.metricInc(MetricPasskeyReplay)
		}
		e.metricInc(MetricPasskeyFailure)
		mapped := mapPasskeyError(err)
		e.emitAudit(ctx, auditEventPasskeyLogin, false, username, "", mapped, nil)
		return nil, mapped
	}

	u, err := e.users.Get(ctx, username)
	if err != nil {
		return nil, storeErr(err)
	}
	if u == nil {
		e.metricInc(MetricPasskeyFailure)
		return nil, ErrPasskeyInvalid
	}
	if u.Status != stores.StatusActive {
		return nil, ErrAccountPending
	}
	if err := e.lockout.Reset(ctx, u.Username); err != nil {
		e.logger.Warn(ctx, "lockout reset failed", "username", u.Username, "error", err)
	}

	e.metricInc(MetricPasskeySuccess)
	e.emitAudit(ctx, auditEventPasskeyLogin, true, u.Username, u.Role, nil, nil)
	return e.completeLogin(ctx, u, "passkey")
}

// ListPasskeys returns the caller's registered passkeys.
func (e *Engine) ListPasskeys(ctx context.Context, id *Identity) ([]PasskeyView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if id == nil || id.Username == "" {
		return nil, ErrUnauthorized
	}
	creds, err := e.passkeyStore.List(ctx, id.Username)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]PasskeyView, 0, len(creds))
	for _, c := range creds {
		out = append(out, PasskeyView{
			ID:         c.ID,
			Name:       c.Name,
			CreatedAt:  c.CreatedAt,
			LastUsedAt: c.LastUsedAt,
			Synced:     c.BackupEligible,
		})
	}
	return out, nil
}

// DeletePasskey removes one of the caller's passkeys.
func (e *Engine) DeletePasskey(ctx context.Context, id *Identity, credentialID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if id == nil || id.Username == "" {
		return ErrUnauthorized
	}
	if credentialID == "" {
		return fmt.Errorf("%w: credential id required", ErrValidation)
	}
	ok, err := e.passkeyStore.Delete(ctx, id.Username, credentialID)
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return ErrNotFound
	}
	e.emitAudit(ctx, auditEventPasskeyRemoved, true, id.Username, id.Role, nil, nil)
	return nil
}

func mapPasskeyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, passkey.ErrMalformed):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, passkey.ErrChallengeInvalid),
		errors.Is(err, passkey.ErrNoCredentials),
		errors.Is(err, passkey.ErrCredentialNotFound),
		errors.Is(err, passkey.ErrCounterReplay),
		errors.Is(err, passkey.ErrVerification):
		return ErrPasskeyInvalid
	default:
		return storeErr(err)
	}
}
