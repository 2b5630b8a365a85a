package dnsgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/google/uuid"
)

// Register creates an active user-role account when self-registration is
// open. Any existing record, pending invitations included, makes it fail
// with [ErrUserExists]. The admin name is reserved whether or not its
// record exists yet.
func (e *Engine) Register(ctx context.Context, username, passwordDigest string) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Registration.Open {
		e.emitAudit(ctx, auditEventRegistration, false, username, "", ErrRegistrationClosed, nil)
		return nil, ErrRegistrationClosed
	}
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if passwordDigest == "" {
		return nil, fmt.Errorf("%w: password required", ErrValidation)
	}
	if username == AdminUsername {
		e.metricInc(MetricRegistrationDuplicate)
		e.emitAudit(ctx, auditEventRegistration, false, username, "", ErrUserExists, func() map[string]string {
			return map[string]string{"reason": "reserved"}
		})
		return nil, ErrUserExists
	}

	hash, err := e.passwordHash.Hash(passwordDigest)
	if err != nil {
		return nil, err
	}
	u := &stores.User{
		Username:     username,
		PasswordHash: hash,
		Role:         RoleUser,
		Status:       stores.StatusActive,
		CreatedAt:    e.now().UnixMilli(),
	}
	if err := e.users.Create(ctx, u); err != nil {
		if errors.Is(err, stores.ErrUserExists) {
			e.metricInc(MetricRegistrationDuplicate)
			e.emitAudit(ctx, auditEventRegistration, false, username, "", ErrUserExists, nil)
			return nil, ErrUserExists
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistration, true, username, RoleUser, nil, nil)
	view := userView(u)
	return &view, nil
}

// Invite creates a pending account with a one-time setup token. The token
// is returned once and is the only way to activate the account.
func (e *Engine) Invite(ctx context.Context, admin *Identity, in InviteInput) (*Invitation, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	username, err := NormalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("%w: role must be %q or %q", ErrValidation, RoleAdmin, RoleUser)
	}
	if username == AdminUsername {
		return nil, ErrUserExists
	}

	u := &stores.User{
		Username:     username,
		Role:         role,
		Status:       stores.StatusPending,
		SetupToken:   uuid.NewString(),
		AllowedZones: normalizeZones(in.AllowedZones),
		CreatedAt:    e.now().UnixMilli(),
	}
	if err := e.users.Create(ctx, u); err != nil {
		if errors.Is(err, stores.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricInvitationCreated)
	e.emitAudit(ctx, auditEventInvitation, true, admin.Username, admin.Role, nil, func() map[string]string {
		return map[string]string{"invited": username, "invited_role": role}
	})
	return &Invitation{Username: username, Role: role, SetupToken: u.SetupToken}, nil
}

// SetupAccount activates a pending account. The setup token is compared in
// constant time and cleared on success.
func (e *Engine) SetupAccount(ctx context.Context, username, setupToken, passwordDigest string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	username, err := NormalizeUsername(username)
	if err != nil {
		return err
	}
	if setupToken == "" || passwordDigest == "" {
		return fmt.Errorf("%w: setupToken and password required", ErrValidation)
	}

	u, err := e.users.Get(ctx, username)
	if err != nil {
		return storeErr(err)
	}
	if u == nil || u.Status != stores.StatusPending || u.SetupToken == "" ||
		subtle.ConstantTimeCompare([]byte(u.SetupToken), []byte(setupToken)) != 1 {
		e.emitAudit(ctx, auditEventAccountSetup, false, username, "", ErrSetupTokenInvalid, nil)
		return ErrSetupTokenInvalid
	}

	hash, err := e.passwordHash.Hash(passwordDigest)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.Status = stores.StatusActive
	u.SetupToken = ""
	if err := e.users.Put(ctx, u); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricAccountSetup)
	e.emitAudit(ctx, auditEventAccountSetup, true, u.Username, u.Role, nil, nil)
	return nil
}

// ChangePassword verifies the current password of the caller and stores a
// fresh digest for the new one.
func (e *Engine) ChangePassword(ctx context.Context, id *Identity, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if current == "" || next == "" {
		return fmt.Errorf("%w: currentPassword and newPassword required", ErrValidation)
	}
	if current == next {
		return fmt.Errorf("%w: new password must differ", ErrValidation)
	}

	u, err := e.requireUser(ctx, id)
	if err != nil {
		return err
	}
	ok, err := e.passwordHash.Verify(current, u.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventPasswordChange, false, u.Username, u.Role, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.passwordHash.Hash(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := e.users.Put(ctx, u); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChange, true, u.Username, u.Role, nil, nil)
	return nil
}

// Profile returns the caller's identity and second-factor status.
func (e *Engine) Profile(ctx context.Context, id *Identity) (*Profile, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.requireUser(ctx, id)
	if err != nil {
		return nil, err
	}
	secret, err := e.activeTOTPSecret(ctx, u)
	if err != nil {
		return nil, storeErr(err)
	}
	creds, err := e.passkeyStore.List(ctx, u.Username)
	if err != nil {
		return nil, storeErr(err)
	}
	return &Profile{
		Username:     u.Username,
		Role:         u.Role,
		AllowedZones: nonNilZones(u.AllowedZones),
		TOTPEnabled:  secret != "",
		Passkeys:     len(creds),
	}, nil
}

/*
====================================
ADMIN USER MANAGEMENT
====================================
*/

// ListUsers returns every user record, ordered by username.
func (e *Engine) ListUsers(ctx context.Context, admin *Identity) ([]UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	names, err := e.users.List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]UserView, 0, len(names))
	for _, name := range names {
		u, err := e.users.Get(ctx, name)
		if err != nil {
			return nil, storeErr(err)
		}
		if u == nil {
			continue
		}
		out = append(out, userView(u))
	}
	return out, nil
}

// UpdateUser changes the role or zone allow-list of username. An admin
// cannot demote itself.
func (e *Engine) UpdateUser(ctx context.Context, admin *Identity, username string, upd UserUpdate) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	u, err := e.users.Get(ctx, username)
	if err != nil {
		return nil, storeErr(err)
	}
	if u == nil {
		return nil, ErrNotFound
	}

	if upd.Role != nil {
		role := *upd.Role
		if role != RoleUser && role != RoleAdmin {
			return nil, fmt.Errorf("%w: role must be %q or %q", ErrValidation, RoleAdmin, RoleUser)
		}
		if username == admin.Username && role != RoleAdmin {
			return nil, fmt.Errorf("%w: cannot demote yourself", ErrValidation)
		}
		u.Role = role
	}
	if upd.AllowedZones != nil {
		u.AllowedZones = normalizeZones(*upd.AllowedZones)
	}
	if err := e.users.Put(ctx, u); err != nil {
		return nil, storeErr(err)
	}

	e.emitAudit(ctx, auditEventUserUpdated, true, admin.Username, admin.Role, nil, func() map[string]string {
		return map[string]string{"target": username, "target_role": u.Role}
	})
	view := userView(u)
	return &view, nil
}

// DeleteUser removes username and everything that belongs to it. The caller
// cannot delete itself.
func (e *Engine) DeleteUser(ctx context.Context, admin *Identity, username string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if !admin.IsAdmin() {
		return ErrForbidden
	}
	username, err := NormalizeUsername(username)
	if err != nil {
		return err
	}
	if username == admin.Username {
		return fmt.Errorf("%w: cannot delete yourself", ErrValidation)
	}
	u, err := e.users.Get(ctx, username)
	if err != nil {
		return storeErr(err)
	}
	if u == nil {
		return ErrNotFound
	}

	if err := e.users.Delete(ctx, username); err != nil {
		return storeErr(err)
	}
	if err := e.lockout.Reset(ctx, username); err != nil {
		e.logger.Warn(ctx, "lockout reset after delete failed", "username", username, "error", err)
	}
	if username == AdminUsername {
		if err := e.totpStore.DeleteAdminSecret(ctx); err != nil {
			e.logger.Warn(ctx, "admin totp cleanup failed", "error", err)
		}
	}

	e.metricInc(MetricUserDeleted)
	e.emitAudit(ctx, auditEventUserDeleted, true, admin.Username, admin.Role, nil, func() map[string]string {
		return map[string]string{"target": username}
	})
	return nil
}

// requireUser loads the record behind id. A record that vanished or went
// back to pending invalidates the session.
func (e *Engine) requireUser(ctx context.Context, id *Identity) (*stores.User, error) {
	if id == nil || id.Username == "" {
		return nil, ErrUnauthorized
	}
	u, err := e.users.Get(ctx, id.Username)
	if err != nil {
		return nil, storeErr(err)
	}
	if u == nil || u.Status != stores.StatusActive {
		return nil, ErrSessionInvalid
	}
	return u, nil
}

func userView(u *stores.User) UserView {
	return UserView{
		Username:     u.Username,
		Role:         u.Role,
		Status:       u.Status,
		AllowedZones: nonNilZones(u.AllowedZones),
		CreatedAt:    u.CreatedAt,
	}
}

func normalizeZones(in []string) []string {
	out := make([]string, 0, len(in))
	for _, z := range in {
		z = strings.ToLower(strings.TrimSpace(z))
		if z == "" || slices.Contains(out, z) {
			continue
		}
		out = append(out, z)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nonNilZones(z []string) []string {
	if z == nil {
		return []string{}
	}
	return z
}
