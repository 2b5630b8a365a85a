package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationLedger records invalidated refresh-token identifiers.
type RevocationLedger struct {
	redis redis.UniversalClient
}

func NewRevocationLedger(redisClient redis.UniversalClient) *RevocationLedger {
	return &RevocationLedger{redis: redisClient}
}

// Revoke marks jti as rejected for ttl.
func (l *RevocationLedger) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := l.redis.Set(ctx, RevokedKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti has a live revocation entry.
func (l *RevocationLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.redis.Exists(ctx, RevokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
