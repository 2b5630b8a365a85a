package dnsgate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/dnsgate/internal/audit"
	"github.com/MrEthical07/dnsgate/internal/flows"
	"github.com/MrEthical07/dnsgate/internal/limiters"
	"github.com/MrEthical07/dnsgate/internal/logging"
	"github.com/MrEthical07/dnsgate/internal/rate"
	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/MrEthical07/dnsgate/jwt"
	"github.com/MrEthical07/dnsgate/passkey"
	"github.com/MrEthical07/dnsgate/password"
)

// Engine runs every authentication and account operation of the gateway.
// It holds no per-request state; all coordination goes through Redis, so
// one Engine serves concurrent requests.
type Engine struct {
	config Config
	clock  func() time.Time
	logger logging.Logger

	users        *stores.UserStore
	accounts     *stores.AccountStore
	ledger       *stores.RevocationLedger
	totpStore    *stores.TOTPStore
	passkeyStore *stores.PasskeyStore

	rateLimiter  *rate.Limiter
	lockout      *limiters.Lockout
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	totp         *totpVerifier
	passkeys     *passkey.Service
	upstream     Upstream

	flows flows.Deps
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{2,32}$`)

// NormalizeUsername lowercases and trims name and checks the allowed
// alphabet and length.
func NormalizeUsername(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !usernamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: username must be 2-32 characters of a-z, 0-9, _ or -", ErrValidation)
	}
	return name, nil
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// RecordResolve records the latency of one resolver decision and counts
// its outcomes. A forwarded request passes no outcome.
func (e *Engine) RecordResolve(d time.Duration, outcomes ...MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	for _, id := range outcomes {
		e.metrics.Inc(id)
	}
	e.metrics.Observe(MetricResolveLatency, d)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// Logger returns the logger the Engine writes to.
func (e *Engine) Logger() logging.Logger {
	if e == nil || e.logger == nil {
		return logging.Nop{}
	}
	return e.logger
}

// Settings returns the deployment settings any authenticated user may read.
func (e *Engine) Settings() Settings {
	return Settings{
		RegistrationOpen: e.config.Registration.Open,
		PasskeysEnabled:  e.passkeys != nil,
	}
}

/*
====================================
RATE LIMITING
====================================
*/

// RateLimited reports whether path has a rate-limit rule.
func (e *Engine) RateLimited(path string) bool {
	return e.config.RateLimit.Enabled && e.rateLimiter.Limited(path)
}

// CheckRateLimit counts one request from ip to path. Paths without a rule
// return nil without touching the store. A store failure is logged and the
// request is allowed.
func (e *Engine) CheckRateLimit(ctx context.Context, ip, path string) error {
	if !e.RateLimited(path) {
		return nil
	}
	retryAfter, err := e.rateLimiter.Check(ctx, ip, path)
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, path, retryAfter)
		return &RetryAfterError{
			Err:        ErrRateLimited,
			RetryAfter: retryAfter,
			Until:      e.now().Add(time.Duration(retryAfter) * time.Second),
		}
	case err != nil:
		e.logger.Warn(ctx, "rate limiter unavailable", "path", path, "error", err)
	}
	return nil
}

/*
====================================
LOGIN
====================================
*/

// Login runs the first authentication round. An empty username means the
// distinguished admin identity. When the user has an active TOTP secret the
// result has RequiresTOTP set and carries no tokens.
func (e *Engine) Login(ctx context.Context, username, passwordDigest string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.login(ctx, username, passwordDigest, "", false, "password")
}

// VerifyTOTP runs the second round: it re-verifies the password together
// with code and issues tokens.
func (e *Engine) VerifyTOTP(ctx context.Context, username, passwordDigest, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: code required", ErrValidation)
	}
	return e.login(ctx, username, passwordDigest, code, true, "totp")
}

func (e *Engine) login(ctx context.Context, username, passwordDigest, code string, requireCode bool, method string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" {
		username = AdminUsername
	}
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if passwordDigest == "" {
		return nil, fmt.Errorf("%w: password required", ErrValidation)
	}

	res := flows.RunLogin(ctx, flows.LoginRequest{
		Username:    username,
		Password:    passwordDigest,
		Code:        strings.TrimSpace(code),
		RequireCode: requireCode,
	}, e.flows.Login)

	if err := e.mapLoginFailure(ctx, username, method, res); err != nil {
		return nil, err
	}

	user := res.User
	if res.Bootstrapped {
		e.metricInc(MetricAdminBootstrapped)
		e.emitAudit(ctx, auditEventAdminBootstrapped, true, user.Username, user.Role, nil, nil)
	}
	if res.HashUpgraded {
		e.metricInc(MetricLegacyHashUpgraded)
		e.emitAudit(ctx, auditEventHashUpgraded, true, user.Username, user.Role, nil, nil)
	}
	if res.TOTPRequired {
		e.metricInc(MetricTOTPRequired)
		e.emitAudit(ctx, auditEventTOTPRequired, true, user.Username, user.Role, nil, nil)
		return &LoginResult{Username: user.Username, RequiresTOTP: true}, nil
	}
	if res.TOTPUsed {
		e.metricInc(MetricTOTPSuccess)
	}

	return e.completeLogin(ctx, user, method)
}

func (e *Engine) mapLoginFailure(ctx context.Context, username, method string, res flows.LoginResult) error {
	meta := func() map[string]string { return map[string]string{"method": method} }

	var err error
	switch res.Failure {
	case flows.LoginFailureNone:
		return nil
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		err = &RetryAfterError{
			Err:        ErrAccountLocked,
			RetryAfter: res.RetryAfter,
			Until:      e.now().Add(time.Duration(res.RetryAfter) * time.Second),
		}
		e.emitAudit(ctx, auditEventLoginLocked, false, username, "", err, meta)
		return err
	case flows.LoginFailureBackend:
		e.logger.Error(ctx, "login backend failure", "username", username, "error", res.Err)
		err = fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	case flows.LoginFailureUnknownUser, flows.LoginFailurePassword:
		e.metricInc(MetricLoginFailure)
		err = ErrInvalidCredentials
	case flows.LoginFailurePending:
		e.metricInc(MetricLoginPending)
		err = ErrAccountPending
	case flows.LoginFailureTOTPNotConfigured:
		err = ErrTOTPNotConfigured
	case flows.LoginFailureTOTPInvalid:
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, username, "", ErrTOTPInvalid, meta)
		err = ErrTOTPInvalid
	default:
		err = ErrInvalidCredentials
	}
	if res.NowLocked {
		e.metricInc(MetricLoginLocked)
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, username, "", err, meta)
	return err
}

// completeLogin issues tokens for an authenticated user and assembles the
// login response.
func (e *Engine) completeLogin(ctx context.Context, user *stores.User, method string) (*LoginResult, error) {
	access, refresh, err := e.issuePair(user.Username, user.Role)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.Username, user.Role, err, nil)
		return nil, err
	}

	if user.Username == AdminUsername && user.Role == RoleAdmin {
		e.migrateLegacySlots(ctx, user.Username)
	}
	accounts, err := e.accountSummaries(ctx, user.Username, user.Role)
	if err != nil {
		e.logger.Warn(ctx, "account listing failed", "username", user.Username, "error", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.Username, user.Role, nil, func() map[string]string {
		return map[string]string{"method": method}
	})

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Accounts:     accounts,
		Role:         user.Role,
		Username:     user.Username,
	}, nil
}

/*
====================================
TOKENS
====================================
*/

// Authenticate verifies an access token and returns the identity it
// carries. Access tokens are stateless: the revocation ledger is not
// consulted.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.jwtManager == nil {
		return nil, ErrServerMisconfigured
	}
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	return &Identity{Username: claims.Username(), Role: claims.Role}, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new pair and
// revokes the presented one.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.jwtManager == nil {
		return nil, ErrServerMisconfigured
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: refreshToken required", ErrValidation)
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)

	var err error
	reason := ""
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Username, res.Role, nil, nil)
		return &TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
	case flows.RefreshFailureDecode:
		err, reason = ErrSessionInvalid, "decode_failed"
	case flows.RefreshFailureRevoked:
		e.metricInc(MetricRefreshRevoked)
		e.emitAudit(ctx, auditEventRefreshRevoked, false, res.Username, "", ErrSessionInvalid, nil)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrSessionInvalid
	case flows.RefreshFailureUserGone:
		err, reason = ErrSessionInvalid, "user_inactive"
	case flows.RefreshFailureLedger, flows.RefreshFailureUserLookup:
		err, reason = fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err), "backend"
	default:
		err, reason = res.Err, "issue_failed"
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Username, "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return nil, err
}

// Logout revokes refreshToken when it verifies and belongs to username.
// Logout never fails: revocation errors are logged and swallowed.
func (e *Engine) Logout(ctx context.Context, username, refreshToken string) {
	if e == nil {
		return
	}
	e.metricInc(MetricLogout)
	if e.jwtManager == nil {
		return
	}

	res := flows.RunLogout(ctx, username, strings.TrimSpace(refreshToken), e.flows.Logout)
	if res.Err != nil && res.JTI != "" {
		e.metricInc(MetricRevocationWriteFailed)
		e.logger.Warn(ctx, "refresh revocation failed", "username", username, "error", res.Err)
	}
	e.emitAudit(ctx, auditEventLogout, true, username, "", nil, func() map[string]string {
		if res.Revoked {
			return map[string]string{"revoked": "true"}
		}
		return nil
	})
}

func (e *Engine) issuePair(username, role string) (string, string, error) {
	if e.jwtManager == nil {
		return "", "", ErrServerMisconfigured
	}
	access, err := e.jwtManager.IssueAccess(username, role)
	if err != nil {
		return "", "", err
	}
	refresh, _, err := e.jwtManager.IssueRefresh(username, role)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (e *Engine) issueAccess(username, role string) (string, error) {
	if e.jwtManager == nil {
		return "", ErrServerMisconfigured
	}
	return e.jwtManager.IssueAccess(username, role)
}

func (e *Engine) issueRefresh(username, role string) (string, string, error) {
	if e.jwtManager == nil {
		return "", "", ErrServerMisconfigured
	}
	return e.jwtManager.IssueRefresh(username, role)
}

func (e *Engine) parseRefresh(token string) (*jwt.Claims, error) {
	if e.jwtManager == nil {
		return nil, ErrServerMisconfigured
	}
	return e.jwtManager.ParseRefresh(token)
}

func (e *Engine) remainingLife(claims *jwt.Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return e.config.JWT.RefreshTTL
	}
	return claims.ExpiresAt.Time.Sub(e.now())
}

/*
====================================
TOTP SECRET LOOKUP
====================================
*/

// activeTOTPSecret returns the active secret of u. The admin secret lives
// at its own key; everyone else's is on the user record.
func (e *Engine) activeTOTPSecret(ctx context.Context, u *stores.User) (string, error) {
	if u.Username == AdminUsername {
		return e.totpStore.AdminSecret(ctx)
	}
	return u.TOTPSecret, nil
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
