package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/dnsgate/internal/limiters"
	"github.com/MrEthical07/dnsgate/internal/stores"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureLocked
	LoginFailureBackend
	LoginFailureUnknownUser
	LoginFailurePending
	LoginFailurePassword
	LoginFailureTOTPNotConfigured
	LoginFailureTOTPInvalid
)

// LoginRequest is one authentication round. Code is only read when the
// user has an active TOTP secret or RequireCode is set.
type LoginRequest struct {
	Username    string
	Password    string
	Code        string
	RequireCode bool
}

// LoginResult carries either the authenticated user or failure metadata.
// TOTPRequired is set, with a nil Err, when the password was correct but a
// second round with a code is needed.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	RetryAfter   int
	NowLocked    bool
	User         *stores.User
	TOTPRequired bool
	TOTPUsed     bool
	Bootstrapped bool
	HashUpgraded bool
}

type LoginLockout interface {
	Check(ctx context.Context, username string) (int, error)
	RecordFailure(ctx context.Context, username string) (bool, error)
	Reset(ctx context.Context, username string) error
}

type LoginUserStore interface {
	Get(ctx context.Context, username string) (*stores.User, error)
	Create(ctx context.Context, u *stores.User) error
	Put(ctx context.Context, u *stores.User) error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Lockout LoginLockout
	Users   LoginUserStore

	VerifyPassword func(secret, stored string) (bool, error)
	HashPassword   func(secret string) (string, error)
	// NeedsUpgrade marks stored digests that are rewritten after every
	// successful password check.
	NeedsUpgrade func(stored string) bool

	// AdminUsername may authenticate against LegacyAdminDigest while it has
	// no stored record. An empty digest disables the bootstrap.
	AdminUsername     string
	LegacyAdminDigest string

	TOTPSecret func(ctx context.Context, u *stores.User) (string, error)
	// ValidateTOTP accepts a code at most once; a replayed code is invalid.
	ValidateTOTP func(ctx context.Context, username, code, secret string) bool

	Now  func() time.Time
	Warn func(ctx context.Context, msg string, args ...any)
}

func (d LoginDeps) warn(ctx context.Context, msg string, args ...any) {
	if d.Warn != nil {
		d.Warn(ctx, msg, args...)
	}
}

// RunLogin verifies one login round. It never issues tokens; the caller
// does that when the result has no failure and no pending TOTP round.
//
// Both rounds record failures on the same lockout counter, and the counter
// is only reset once a round completes without a pending second factor.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) LoginResult {
	username := req.Username

	retryAfter, err := deps.Lockout.Check(ctx, username)
	switch {
	case errors.Is(err, limiters.ErrLocked):
		return LoginResult{Failure: LoginFailureLocked, Err: err, RetryAfter: retryAfter}
	case err != nil:
		return LoginResult{Failure: LoginFailureBackend, Err: err}
	}

	user, err := deps.Users.Get(ctx, username)
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err}
	}

	bootstrapped := false
	if user == nil {
		if username != deps.AdminUsername || deps.LegacyAdminDigest == "" {
			return fail(ctx, deps, username, LoginFailureUnknownUser, nil)
		}
		ok, _ := deps.VerifyPassword(req.Password, deps.LegacyAdminDigest)
		if !ok {
			return fail(ctx, deps, username, LoginFailurePassword, nil)
		}
		user, err = bootstrapAdmin(ctx, req.Password, deps)
		if err != nil {
			return LoginResult{Failure: LoginFailureBackend, Err: err}
		}
		bootstrapped = true
	}

	if user.Status == stores.StatusPending {
		return LoginResult{Failure: LoginFailurePending, User: user}
	}

	upgraded := false
	if !bootstrapped {
		ok, verr := deps.VerifyPassword(req.Password, user.PasswordHash)
		if verr != nil || !ok {
			return fail(ctx, deps, username, LoginFailurePassword, verr)
		}
		if deps.NeedsUpgrade != nil && deps.NeedsUpgrade(user.PasswordHash) {
			upgraded = upgradeHash(ctx, user, req.Password, deps)
		}
	}

	secret, err := deps.TOTPSecret(ctx, user)
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err}
	}

	result := LoginResult{User: user, Bootstrapped: bootstrapped, HashUpgraded: upgraded}
	switch {
	case secret == "" && req.RequireCode:
		result.Failure = LoginFailureTOTPNotConfigured
		return result
	case secret != "" && req.Code == "" && !req.RequireCode:
		result.TOTPRequired = true
		return result
	case secret != "":
		if !deps.ValidateTOTP(ctx, username, req.Code, secret) {
			failed := fail(ctx, deps, username, LoginFailureTOTPInvalid, nil)
			failed.User = user
			return failed
		}
		result.TOTPUsed = true
	}

	if err := deps.Lockout.Reset(ctx, username); err != nil {
		deps.warn(ctx, "lockout reset failed", "username", username, "error", err)
	}
	return result
}

func fail(ctx context.Context, deps LoginDeps, username string, kind LoginFailureKind, cause error) LoginResult {
	locked, err := deps.Lockout.RecordFailure(ctx, username)
	if err != nil {
		deps.warn(ctx, "lockout record failed", "username", username, "error", err)
	}
	return LoginResult{Failure: kind, Err: cause, NowLocked: locked}
}

func bootstrapAdmin(ctx context.Context, secret string, deps LoginDeps) (*stores.User, error) {
	hash, err := deps.HashPassword(secret)
	if err != nil {
		return nil, err
	}
	user := &stores.User{
		Username:     deps.AdminUsername,
		PasswordHash: hash,
		Role:         stores.RoleAdmin,
		Status:       stores.StatusActive,
		CreatedAt:    deps.Now().UnixMilli(),
	}
	err = deps.Users.Create(ctx, user)
	if errors.Is(err, stores.ErrUserExists) {
		// A concurrent login won the race; use its record.
		existing, getErr := deps.Users.Get(ctx, deps.AdminUsername)
		if getErr != nil || existing == nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func upgradeHash(ctx context.Context, user *stores.User, secret string, deps LoginDeps) bool {
	hash, err := deps.HashPassword(secret)
	if err != nil {
		deps.warn(ctx, "password rehash failed", "username", user.Username, "error", err)
		return false
	}
	updated := *user
	updated.PasswordHash = hash
	if err := deps.Users.Put(ctx, &updated); err != nil {
		deps.warn(ctx, "password upgrade write failed", "username", user.Username, "error", err)
		return false
	}
	*user = updated
	return true
}
