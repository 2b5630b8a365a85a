package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	StatusPending = "pending"
	StatusActive  = "active"
)

// ErrUserExists is returned by Create when the username is taken.
var ErrUserExists = errors.New("user already exists")

// User is the persisted account record.
type User struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"passwordHash,omitempty"`
	Role         string   `json:"role"`
	Status       string   `json:"status"`
	SetupToken   string   `json:"setupToken,omitempty"`
	TOTPSecret   string   `json:"totpSecret,omitempty"`
	AllowedZones []string `json:"allowedZones,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
}

// UserStore persists user records and the user list.
type UserStore struct {
	redis redis.UniversalClient
}

func NewUserStore(redisClient redis.UniversalClient) *UserStore {
	return &UserStore{redis: redisClient}
}

// Get returns the record of username, or nil when absent.
func (s *UserStore) Get(ctx context.Context, username string) (*User, error) {
	var u User
	found, err := getJSON(ctx, s.redis, UserKey(username), &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

// Create stores u only if no record exists for its username and appends the
// username to the user list.
func (s *UserStore) Create(ctx context.Context, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, UserKey(u.Username), data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrUserExists
	}
	return s.addToList(ctx, u.Username)
}

// Put overwrites the record of u.Username.
func (s *UserStore) Put(ctx context.Context, u *User) error {
	return setJSON(ctx, s.redis, UserKey(u.Username), u, 0)
}

// Delete removes the record, its slots and passkeys, and the list entry.
func (s *UserStore) Delete(ctx context.Context, username string) error {
	if err := del(ctx, s.redis, UserKey(username), UserTokensKey(username), PasskeyKey(username), totpPendingKey(username), TOTPStepKey(username)); err != nil {
		return err
	}
	return s.removeFromList(ctx, username)
}

// List returns all usernames in sorted order.
func (s *UserStore) List(ctx context.Context) ([]string, error) {
	var names []string
	if _, err := getJSON(ctx, s.redis, userListKey, &names); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *UserStore) addToList(ctx context.Context, username string) error {
	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(names, username) {
		return nil
	}
	names = append(names, username)
	return setJSON(ctx, s.redis, userListKey, names, 0)
}

func (s *UserStore) removeFromList(ctx context.Context, username string) error {
	names, err := s.List(ctx)
	if err != nil {
		return err
	}
	idx := slices.Index(names, username)
	if idx < 0 {
		return nil
	}
	names = slices.Delete(names, idx, idx+1)
	return setJSON(ctx, s.redis, userListKey, names, 0)
}
