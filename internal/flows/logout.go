package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/dnsgate/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseRefresh func(string) (*jwt.Claims, error)
	Ledger       RefreshLedger
	RevokeTTL    time.Duration
}

// LogoutResult reports what logout did. Err is informational only: logout
// always succeeds for the caller.
type LogoutResult struct {
	Revoked bool
	JTI     string
	Err     error
}

// RunLogout revokes refreshToken when it is present and verifies. A token
// owned by someone other than username is ignored.
func RunLogout(ctx context.Context, username, refreshToken string, deps LogoutDeps) LogoutResult {
	if refreshToken == "" {
		return LogoutResult{}
	}
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return LogoutResult{Err: err}
	}
	if username != "" && claims.Username() != username {
		return LogoutResult{JTI: claims.ID}
	}
	if err := deps.Ledger.Revoke(ctx, claims.ID, deps.RevokeTTL); err != nil {
		return LogoutResult{JTI: claims.ID, Err: err}
	}
	return LogoutResult{Revoked: true, JTI: claims.ID}
}
