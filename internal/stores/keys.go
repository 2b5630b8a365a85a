package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userListKey      = "USER_LIST"
	adminTOTPKey     = "TOTP_SECRET:admin"
	userPrefix       = "USER:"
	userTokensPrefix = "USER_TOKENS:"
	revokedPrefix    = "REVOKED_RT:"
	totpPendingPfx   = "TOTP_PENDING:"
	totpStepPrefix   = "TOTP_LAST_STEP:"
	challengePrefix  = "PASSKEY_CHALLENGE:"
	passkeyPrefix    = "PASSKEY_CREDS:"
)

// ErrUnavailable wraps every backend failure.
var ErrUnavailable = errors.New("credential store unavailable")

// UserKey returns the record key of username.
func UserKey(username string) string { return userPrefix + username }

// UserTokensKey returns the slot-list key of username.
func UserTokensKey(username string) string { return userTokensPrefix + username }

// RevokedKey returns the revocation key of a refresh-token identifier.
func RevokedKey(jti string) string { return revokedPrefix + jti }

// ChallengeKey returns the key of a passkey challenge.
func ChallengeKey(challenge string) string { return challengePrefix + challenge }

// PasskeyKey returns the credential-list key of username.
func PasskeyKey(username string) string { return passkeyPrefix + username }

func totpPendingKey(username string) string { return totpPendingPfx + username }

// TOTPStepKey returns the key holding the last accepted TOTP step of
// username.
func TOTPStepKey(username string) string { return totpStepPrefix + username }

func getJSON(ctx context.Context, rdb redis.UniversalClient, key string, dst any) (bool, error) {
	data, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, rdb redis.UniversalClient, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func del(ctx context.Context, rdb redis.UniversalClient, keys ...string) error {
	if err := rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
