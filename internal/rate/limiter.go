package rate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "RATELIMIT:"

// Rule bounds one endpoint to Max requests per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// DefaultRules is the limited-endpoint table used when none is configured.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"/api/login":                 {Max: 10, Window: time.Minute},
		"/api/verify-totp":           {Max: 10, Window: time.Minute},
		"/api/register":              {Max: 5, Window: time.Hour},
		"/api/setup-account":         {Max: 5, Window: 15 * time.Minute},
		"/api/refresh":               {Max: 30, Window: time.Minute},
		"/api/passkey/login-options": {Max: 20, Window: time.Minute},
		"/api/passkey/login-verify":  {Max: 10, Window: time.Minute},
	}
}

type window struct {
	Count       int   `json:"count"`
	WindowStart int64 `json:"windowStart"`
}

// Limiter enforces the fixed-window rule table.
type Limiter struct {
	redis redis.UniversalClient
	rules map[string]Rule
	now   func() time.Time
}

// New creates a [Limiter]. A nil now uses time.Now.
func New(redisClient redis.UniversalClient, rules map[string]Rule, now func() time.Time) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{redis: redisClient, rules: rules, now: now}
}

// Key returns the window key for ip and endpoint.
func Key(ip, endpoint string) string {
	return keyPrefix + ip + ":" + endpoint
}

// Limited reports whether endpoint has a rule.
func (l *Limiter) Limited(endpoint string) bool {
	_, ok := l.rules[endpoint]
	return ok
}

// Check counts one request from ip against endpoint. When the window is
// exhausted it returns [ErrRateLimited] and the seconds until the window
// ends, never less than one.
func (l *Limiter) Check(ctx context.Context, ip, endpoint string) (int, error) {
	rule, ok := l.rules[endpoint]
	if !ok || rule.Max <= 0 || rule.Window <= 0 {
		return 0, nil
	}

	key := Key(ip, endpoint)
	now := l.now().UnixMilli()
	windowMs := rule.Window.Milliseconds()

	var w window
	data, err := l.redis.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		w = window{WindowStart: now}
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	default:
		if jsonErr := json.Unmarshal(data, &w); jsonErr != nil || now-w.WindowStart > windowMs {
			w = window{WindowStart: now}
		}
	}

	w.Count++
	if err := l.store(ctx, key, w, 2*rule.Window); err != nil {
		return 0, err
	}
	if w.Count <= rule.Max {
		return 0, nil
	}

	remaining := w.WindowStart + windowMs - now
	retryAfter := int((remaining + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter, ErrRateLimited
}

func (l *Limiter) store(ctx context.Context, key string, w window, ttl time.Duration) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if err := l.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
