package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Challenge ceremonies.
const (
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"
)

// ErrChallengeNotFound is returned when a challenge is unknown, expired or
// already consumed.
var ErrChallengeNotFound = errors.New("passkey challenge not found")

// Challenge binds a single-use nonce to a ceremony and, when known, a user.
// Session holds the serialized ceremony state needed to finish it.
type Challenge struct {
	Ceremony  string          `json:"type"`
	Username  string          `json:"username,omitempty"`
	Session   json.RawMessage `json:"session"`
	CreatedAt int64           `json:"createdAt"`
}

// PasskeyCredential is a stored public-key credential.
type PasskeyCredential struct {
	ID              string   `json:"id"`
	PublicKey       []byte   `json:"publicKey"`
	Counter         uint32   `json:"counter"`
	Transports      []string `json:"transports,omitempty"`
	AAGUID          []byte   `json:"aaguid,omitempty"`
	AttestationType string   `json:"attestationType,omitempty"`
	BackupEligible  bool     `json:"backupEligible,omitempty"`
	BackupState     bool     `json:"backupState,omitempty"`
	Name            string   `json:"name,omitempty"`
	CreatedAt       int64    `json:"createdAt"`
	LastUsedAt      int64    `json:"lastUsedAt,omitempty"`
}

// PasskeyStore persists challenges and per-user credential lists.
type PasskeyStore struct {
	redis redis.UniversalClient
}

func NewPasskeyStore(redisClient redis.UniversalClient) *PasskeyStore {
	return &PasskeyStore{redis: redisClient}
}

func (s *PasskeyStore) SaveChallenge(ctx context.Context, challenge string, c *Challenge, ttl time.Duration) error {
	return setJSON(ctx, s.redis, ChallengeKey(challenge), c, ttl)
}

// ConsumeChallenge reads and deletes a challenge in one command, so a nonce
// can finish at most one ceremony.
func (s *PasskeyStore) ConsumeChallenge(ctx context.Context, challenge string) (*Challenge, error) {
	data, err := s.redis.GetDel(ctx, ChallengeKey(challenge)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var c Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &c, nil
}

// List returns the credentials registered by username.
func (s *PasskeyStore) List(ctx context.Context, username string) ([]PasskeyCredential, error) {
	var creds []PasskeyCredential
	if _, err := getJSON(ctx, s.redis, PasskeyKey(username), &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// Put inserts cred, replacing any credential with the same ID.
func (s *PasskeyStore) Put(ctx context.Context, username string, cred PasskeyCredential) error {
	creds, err := s.List(ctx, username)
	if err != nil {
		return err
	}
	replaced := false
	for i := range creds {
		if creds[i].ID == cred.ID {
			creds[i] = cred
			replaced = true
			break
		}
	}
	if !replaced {
		creds = append(creds, cred)
	}
	return setJSON(ctx, s.redis, PasskeyKey(username), creds, 0)
}

// Delete removes the credential with id and reports whether it existed.
func (s *PasskeyStore) Delete(ctx context.Context, username, id string) (bool, error) {
	creds, err := s.List(ctx, username)
	if err != nil {
		return false, err
	}
	kept := creds[:0]
	for _, c := range creds {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(creds) {
		return false, nil
	}
	if len(kept) == 0 {
		return true, del(ctx, s.redis, PasskeyKey(username))
	}
	return true, setJSON(ctx, s.redis, PasskeyKey(username), kept, 0)
}
