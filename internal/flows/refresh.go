package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/MrEthical07/dnsgate/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureRevoked
	RefreshFailureLedger
	RefreshFailureUserLookup
	RefreshFailureUserGone
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	Username     string
	Role         string
	AccessToken  string
	RefreshToken string
}

type RefreshLedger interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

type RefreshUserStore interface {
	Get(ctx context.Context, username string) (*stores.User, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh  func(string) (*jwt.Claims, error)
	IssueAccess   func(username, role string) (string, error)
	IssueRefresh  func(username, role string) (string, string, error)
	RemainingLife func(*jwt.Claims) time.Duration
	Ledger        RefreshLedger
	Users         RefreshUserStore
	Warn          func(ctx context.Context, msg string, args ...any)
}

// RunRefresh exchanges a refresh token for a new pair. The presented token
// must verify and must not be in the ledger. The role comes from the
// current user record so demotions take effect on the next refresh. The
// presented identifier is revoked after the new pair is issued.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	username := claims.Username()

	revoked, err := deps.Ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureLedger, Err: err, Username: username}
	}
	if revoked {
		return RefreshResult{Failure: RefreshFailureRevoked, Username: username}
	}

	user, err := deps.Users.Get(ctx, username)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, Username: username}
	}
	if user == nil || user.Status != stores.StatusActive {
		return RefreshResult{Failure: RefreshFailureUserGone, Username: username}
	}

	access, err := deps.IssueAccess(user.Username, user.Role)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Username: username}
	}
	refresh, _, err := deps.IssueRefresh(user.Username, user.Role)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Username: username}
	}

	if ttl := deps.RemainingLife(claims); ttl > 0 {
		if err := deps.Ledger.Revoke(ctx, claims.ID, ttl); err != nil && deps.Warn != nil {
			deps.Warn(ctx, "rotated refresh token revocation failed", "username", username, "error", err)
		}
	}

	return RefreshResult{
		Username:     user.Username,
		Role:         user.Role,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
