package limiters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultThreshold = 5
	defaultCooldown  = 900 * time.Second
	keyPrefix        = "LOGIN_ATTEMPTS:"
)

var (
	// ErrLocked is returned by Check while the cooldown is running.
	ErrLocked = errors.New("account temporarily locked")
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutConfig holds the failure threshold and cooldown.
type LockoutConfig struct {
	Threshold int
	Cooldown  time.Duration
}

type attempts struct {
	Count       int   `json:"count"`
	LastAttempt int64 `json:"lastAttempt"`
}

// Lockout tracks consecutive authentication failures per username.
type Lockout struct {
	redis     redis.UniversalClient
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewLockout creates a lockout tracker. Zero-value fields in cfg fall back
// to 5 failures / 900 s; a nil now uses time.Now.
func NewLockout(redisClient redis.UniversalClient, cfg LockoutConfig, now func() time.Time) *Lockout {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Lockout{redis: redisClient, threshold: cfg.Threshold, cooldown: cfg.Cooldown, now: now}
}

// Key returns the counter key of username.
func Key(username string) string { return keyPrefix + username }

// Check returns [ErrLocked] and the remaining cooldown in whole seconds when
// username is locked. An elapsed lock is cleared.
func (l *Lockout) Check(ctx context.Context, username string) (int, error) {
	rec, found, err := l.load(ctx, username)
	if err != nil || !found || rec.Count < l.threshold {
		return 0, err
	}

	elapsed := l.now().Sub(time.UnixMilli(rec.LastAttempt))
	if elapsed >= l.cooldown {
		return 0, l.Reset(ctx, username)
	}
	remaining := int(math.Ceil((l.cooldown - elapsed).Seconds()))
	if remaining < 1 {
		remaining = 1
	}
	return remaining, ErrLocked
}

// RecordFailure counts one failure and reports whether username is now locked.
func (l *Lockout) RecordFailure(ctx context.Context, username string) (bool, error) {
	rec, _, err := l.load(ctx, username)
	if err != nil {
		return false, err
	}
	rec.Count++
	rec.LastAttempt = l.now().UnixMilli()

	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := l.redis.Set(ctx, Key(username), data, 2*l.cooldown).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return rec.Count >= l.threshold, nil
}

// Reset clears the failure counter (successful login or admin action).
func (l *Lockout) Reset(ctx context.Context, username string) error {
	if err := l.redis.Del(ctx, Key(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Failures returns the current consecutive failure count.
func (l *Lockout) Failures(ctx context.Context, username string) (int, error) {
	rec, _, err := l.load(ctx, username)
	return rec.Count, err
}

// Cooldown returns the configured lock duration.
func (l *Lockout) Cooldown() time.Duration { return l.cooldown }

func (l *Lockout) load(ctx context.Context, username string) (attempts, bool, error) {
	var rec attempts
	data, err := l.redis.Get(ctx, Key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return rec, false, nil
		}
		return rec, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return attempts{}, false, nil
	}
	return rec, true, nil
}
