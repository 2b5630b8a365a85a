package stores

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Upstream credential kinds.
const (
	KindAPIToken  = "api_token"
	KindGlobalKey = "global_key"
)

// Slot is one upstream credential owned by a user.
type Slot struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
	Kind  string `json:"kind,omitempty"`
	Email string `json:"email,omitempty"`
}

// AccountStore persists upstream-credential slots under USER_TOKENS.
type AccountStore struct {
	redis redis.UniversalClient
}

func NewAccountStore(redisClient redis.UniversalClient) *AccountStore {
	return &AccountStore{redis: redisClient}
}

// List returns the slots of username ordered by index.
func (s *AccountStore) List(ctx context.Context, username string) ([]Slot, error) {
	var slots []Slot
	if _, err := getJSON(ctx, s.redis, UserTokensKey(username), &slots); err != nil {
		return nil, err
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	return slots, nil
}

// Get returns the slot at index, or nil when the user has none there.
func (s *AccountStore) Get(ctx context.Context, username string, index int) (*Slot, error) {
	slots, err := s.List(ctx, username)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].ID == index {
			return &slots[i], nil
		}
	}
	return nil, nil
}

// Add appends slot at one past the highest existing index.
func (s *AccountStore) Add(ctx context.Context, username string, slot Slot) (Slot, error) {
	slots, err := s.List(ctx, username)
	if err != nil {
		return Slot{}, err
	}
	slot.ID = 0
	if n := len(slots); n > 0 {
		slot.ID = slots[n-1].ID + 1
	}
	if slot.Kind == "" {
		slot.Kind = KindAPIToken
	}
	slots = append(slots, slot)
	if err := setJSON(ctx, s.redis, UserTokensKey(username), slots, 0); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// Replace overwrites the full slot list of username.
func (s *AccountStore) Replace(ctx context.Context, username string, slots []Slot) error {
	return setJSON(ctx, s.redis, UserTokensKey(username), slots, 0)
}

// Delete removes the slot at index and reports whether it existed.
func (s *AccountStore) Delete(ctx context.Context, username string, index int) (bool, error) {
	slots, err := s.List(ctx, username)
	if err != nil {
		return false, err
	}
	kept := slots[:0]
	for _, slot := range slots {
		if slot.ID != index {
			kept = append(kept, slot)
		}
	}
	if len(kept) == len(slots) {
		return false, nil
	}
	if len(kept) == 0 {
		return true, del(ctx, s.redis, UserTokensKey(username))
	}
	return true, setJSON(ctx, s.redis, UserTokensKey(username), kept, 0)
}
