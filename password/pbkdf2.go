package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count for new digests.
	DefaultIterations = 100000

	minIterations   = 10000
	minSaltLength   = 16
	minKeyLength    = 16
	legacyDigestLen = 64
	separator       = ":"
)

var (
	// ErrMalformedDigest is returned when a stored digest is neither a legacy
	// digest nor a salt:hash pair.
	ErrMalformedDigest = errors.New("malformed password digest")
	// ErrEmptySecret is returned when hashing an empty secret.
	ErrEmptySecret = errors.New("empty password secret")
)

// Config holds the derivation parameters. Zero values fall back to defaults.
type Config struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// Hasher derives and verifies salted PBKDF2-SHA256 digests.
type Hasher struct {
	config Config
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = minSaltLength
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = 32
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Hasher{config: cfg}, nil
}

// Hash returns a fresh salt:digest encoding of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := pbkdf2.Key([]byte(secret), salt, h.config.Iterations, h.config.KeyLength, sha256.New)

	return hex.EncodeToString(salt) + separator + hex.EncodeToString(key), nil
}

// Verify reports whether secret matches stored. Legacy digests are compared
// directly; salted digests are re-derived with the stored salt.
func (h *Hasher) Verify(secret string, stored string) (bool, error) {
	if IsLegacy(stored) {
		return subtle.ConstantTimeCompare([]byte(secret), []byte(stored)) == 1, nil
	}

	saltHex, keyHex, ok := strings.Cut(stored, separator)
	if !ok {
		return false, ErrMalformedDigest
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false, ErrMalformedDigest
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) == 0 {
		return false, ErrMalformedDigest
	}

	got := pbkdf2.Key([]byte(secret), salt, h.config.Iterations, len(want), sha256.New)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsUpgrade reports whether stored should be re-hashed after a successful
// verification.
func (h *Hasher) NeedsUpgrade(stored string) bool {
	return IsLegacy(stored)
}

// IsLegacy reports whether stored is an unsalted 64-hex-character digest.
func IsLegacy(stored string) bool {
	if len(stored) != legacyDigestLen || strings.Contains(stored, separator) {
		return false
	}
	for i := 0; i < len(stored); i++ {
		c := stored[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// LegacyDigest returns the unsalted digest of a deployment-level secret: the
// lowercase SHA-256 hex of secret, or secret itself when it already is one.
func LegacyDigest(secret string) string {
	if IsLegacy(secret) {
		return strings.ToLower(secret)
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func validateConfig(cfg Config) error {
	if cfg.Iterations < minIterations {
		return errors.New("password iterations must be >= 10000")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}
