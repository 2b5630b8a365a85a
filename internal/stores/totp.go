package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimStepScript stores ARGV[1] as the last used step unless an equal or
// later step is already recorded.
var claimStepScript = redis.NewScript(`
local last = redis.call("GET", KEYS[1])
if last and tonumber(last) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// TOTPStore holds the admin secret at its fixed key and enrollment secrets
// that have not been confirmed yet. Other users' active secrets live on the
// User record.
type TOTPStore struct {
	redis redis.UniversalClient
}

func NewTOTPStore(redisClient redis.UniversalClient) *TOTPStore {
	return &TOTPStore{redis: redisClient}
}

func (s *TOTPStore) AdminSecret(ctx context.Context) (string, error) {
	return s.getString(ctx, adminTOTPKey)
}

func (s *TOTPStore) SetAdminSecret(ctx context.Context, secret string) error {
	return s.setString(ctx, adminTOTPKey, secret, 0)
}

func (s *TOTPStore) DeleteAdminSecret(ctx context.Context) error {
	return del(ctx, s.redis, adminTOTPKey)
}

// SavePending stores an unconfirmed secret for username.
func (s *TOTPStore) SavePending(ctx context.Context, username, secret string, ttl time.Duration) error {
	return s.setString(ctx, totpPendingKey(username), secret, ttl)
}

// Pending returns the unconfirmed secret, or "" when none is live.
func (s *TOTPStore) Pending(ctx context.Context, username string) (string, error) {
	return s.getString(ctx, totpPendingKey(username))
}

func (s *TOTPStore) DeletePending(ctx context.Context, username string) error {
	return del(ctx, s.redis, totpPendingKey(username))
}

// ClaimStep records step as used for username. It reports false when the
// step, or a later one, was already accepted. The record expires after ttl,
// which must outlast the skew window.
func (s *TOTPStore) ClaimStep(ctx context.Context, username string, step int64, ttl time.Duration) (bool, error) {
	n, err := claimStepScript.Run(ctx, s.redis, []string{TOTPStepKey(username)}, step, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// ResetSteps forgets the last used step, for when the secret changes.
func (s *TOTPStore) ResetSteps(ctx context.Context, username string) error {
	return del(ctx, s.redis, TOTPStepKey(username))
}

func (s *TOTPStore) getString(ctx context.Context, key string) (string, error) {
	v, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

func (s *TOTPStore) setString(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
