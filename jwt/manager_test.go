package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-secret-test-secret"),
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndParseAccess(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, err := m.IssueAccess("alice", "user")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Username() != "alice" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID != "" || claims.Type != "" {
		t.Fatalf("access token must not carry refresh markers: %+v", claims)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, err := m.IssueAccess("alice", "user")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	clock.now = clock.now.Add(15*time.Minute + time.Second)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired access token to be invalid, got %v", err)
	}
}

func TestRefreshTokenCarriesTypeAndID(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, jti, err := m.IssueRefresh("bob", "admin")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if jti == "" {
		t.Fatal("expected refresh jti")
	}

	claims, err := m.ParseRefresh(token)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.ID != jti || claims.Type != TypeRefresh || claims.Role != "admin" {
		t.Fatalf("unexpected refresh claims: %+v", claims)
	}

	clock.now = clock.now.Add(6 * 24 * time.Hour)
	if _, err := m.ParseRefresh(token); err != nil {
		t.Fatalf("refresh token should still be valid after 6 days: %v", err)
	}

	clock.now = clock.now.Add(2 * 24 * time.Hour)
	if _, err := m.ParseRefresh(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token to expire after 7 days, got %v", err)
	}
}

func TestRefreshIdentifiersAreUnique(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	_, a, _ := m.IssueRefresh("bob", "user")
	_, b, _ := m.IssueRefresh("bob", "user")
	if a == b {
		t.Fatal("expected distinct refresh identifiers")
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	access, _ := m.IssueAccess("alice", "user")
	refresh, _, _ := m.IssueRefresh("alice", "user")

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestParseRejectsForgedSignature(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})

	claims := Claims{Role: "admin", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}

	if _, err := m.ParseAccess(forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected forged token to be rejected, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}

	good, err := m.IssueAccess("alice", "user")
	if err != nil {
		t.Fatalf("issue ed25519 access: %v", err)
	}
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected ed25519 token to parse: %v", err)
	}
}

func TestParseRejectsMissingExpiry(t *testing.T) {
	secret := []byte("test-secret-test-secret")
	m, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, PrivateKey: secret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "alice"}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(secret)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestNewManagerRequiresKey(t *testing.T) {
	_, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour})
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}
