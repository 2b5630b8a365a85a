package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/dnsgate/internal/limiters"
	"github.com/MrEthical07/dnsgate/internal/stores"
)

type memLockout struct {
	failures  map[string]int
	threshold int
}

func newMemLockout() *memLockout {
	return &memLockout{failures: map[string]int{}, threshold: 3}
}

func (l *memLockout) Check(_ context.Context, u string) (int, error) {
	if l.failures[u] >= l.threshold {
		return 42, limiters.ErrLocked
	}
	return 0, nil
}

func (l *memLockout) RecordFailure(_ context.Context, u string) (bool, error) {
	l.failures[u]++
	return l.failures[u] >= l.threshold, nil
}

func (l *memLockout) Reset(_ context.Context, u string) error {
	delete(l.failures, u)
	return nil
}

type memUsers struct {
	users map[string]*stores.User
	puts  int
}

func (m *memUsers) Get(_ context.Context, name string) (*stores.User, error) {
	u, ok := m.users[name]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Create(_ context.Context, u *stores.User) error {
	if _, ok := m.users[u.Username]; ok {
		return stores.ErrUserExists
	}
	cp := *u
	m.users[u.Username] = &cp
	return nil
}

func (m *memUsers) Put(_ context.Context, u *stores.User) error {
	m.puts++
	cp := *u
	m.users[u.Username] = &cp
	return nil
}

// plain "hashes" keep the orchestration visible: "h:" marks the modern form.
func testDeps(lock *memLockout, users *memUsers, secrets map[string]string) LoginDeps {
	return LoginDeps{
		Lockout: lock,
		Users:   users,
		VerifyPassword: func(secret, stored string) (bool, error) {
			return stored == secret || stored == "h:"+secret, nil
		},
		HashPassword:      func(secret string) (string, error) { return "h:" + secret, nil },
		NeedsUpgrade:      func(stored string) bool { return len(stored) < 2 || stored[:2] != "h:" },
		AdminUsername:     "admin",
		LegacyAdminDigest: "legacy",
		TOTPSecret: func(_ context.Context, u *stores.User) (string, error) {
			return secrets[u.Username], nil
		},
		ValidateTOTP: func(_ context.Context, _, code, secret string) bool { return code == secret+"-ok" },
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func TestRunLoginUnknownUserCountsFailure(t *testing.T) {
	lock := newMemLockout()
	users := &memUsers{users: map[string]*stores.User{}}

	res := RunLogin(context.Background(), LoginRequest{Username: "ghost", Password: "x"}, testDeps(lock, users, nil))
	if res.Failure != LoginFailureUnknownUser {
		t.Fatalf("expected unknown user, got %v", res.Failure)
	}
	if lock.failures["ghost"] != 1 {
		t.Fatalf("expected one recorded failure, got %d", lock.failures["ghost"])
	}
}

func TestRunLoginLockedSkipsPasswordCheck(t *testing.T) {
	lock := newMemLockout()
	lock.failures["alice"] = 3
	users := &memUsers{users: map[string]*stores.User{
		"alice": {Username: "alice", PasswordHash: "h:pw", Status: stores.StatusActive},
	}}
	deps := testDeps(lock, users, nil)
	called := false
	deps.VerifyPassword = func(string, string) (bool, error) {
		called = true
		return true, nil
	}

	res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "pw"}, deps)
	if res.Failure != LoginFailureLocked || res.RetryAfter != 42 {
		t.Fatalf("expected locked with retry-after, got %+v", res)
	}
	if !errors.Is(res.Err, limiters.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", res.Err)
	}
	if called {
		t.Fatal("password must not be checked while locked")
	}
}

func TestRunLoginThresholdReportsNowLocked(t *testing.T) {
	lock := newMemLockout()
	users := &memUsers{users: map[string]*stores.User{
		"alice": {Username: "alice", PasswordHash: "h:pw", Status: stores.StatusActive},
	}}
	deps := testDeps(lock, users, nil)

	var res LoginResult
	for i := 0; i < 3; i++ {
		res = RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "bad"}, deps)
	}
	if res.Failure != LoginFailurePassword || !res.NowLocked {
		t.Fatalf("third failure should report the lock, got %+v", res)
	}
}

func TestRunLoginUpgradesLegacyDigest(t *testing.T) {
	lock := newMemLockout()
	users := &memUsers{users: map[string]*stores.User{
		"alice": {Username: "alice", PasswordHash: "digest", Status: stores.StatusActive},
	}}

	res := RunLogin(context.Background(), LoginRequest{Username: "alice", Password: "digest"}, testDeps(lock, users, nil))
	if res.Failure != LoginFailureNone || !res.HashUpgraded {
		t.Fatalf("expected upgraded success, got %+v", res)
	}
	if users.users["alice"].PasswordHash != "h:digest" {
		t.Fatalf("stored hash not upgraded: %q", users.users["alice"].PasswordHash)
	}
}

func TestRunLoginBootstrapsAdmin(t *testing.T) {
	lock := newMemLockout()
	users := &memUsers{users: map[string]*stores.User{}}

	res := RunLogin(context.Background(), LoginRequest{Username: "admin", Password: "legacy"}, testDeps(lock, users, nil))
	if res.Failure != LoginFailureNone || !res.Bootstrapped {
		t.Fatalf("expected bootstrap, got %+v", res)
	}
	created := users.users["admin"]
	if created == nil || created.Role != stores.RoleAdmin || created.PasswordHash != "h:legacy" {
		t.Fatalf("unexpected admin record %+v", created)
	}
}

func TestRunLoginPendingUser(t *testing.T) {
	lock := newMemLockout()
	users := &memUsers{users: map[string]*stores.User{
		"carol": {Username: "carol", Status: stores.StatusPending},
	}}

	res := RunLogin(context.Background(), LoginRequest{Username: "carol", Password: "x"}, testDeps(lock, users, nil))
	if res.Failure != LoginFailurePending {
		t.Fatalf("expected pending, got %+v", res)
	}
	if lock.failures["carol"] != 0 {
		t.Fatal("pending logins are not password failures")
	}
}

func TestRunLoginTOTPRounds(t *testing.T) {
	lock := newMemLockout()
	users := &memUsers{users: map[string]*stores.User{
		"alice": {Username: "alice", PasswordHash: "h:pw", Status: stores.StatusActive},
	}}
	lock.failures["alice"] = 1
	deps := testDeps(lock, users, map[string]string{"alice": "sec"})
	ctx := context.Background()

	first := RunLogin(ctx, LoginRequest{Username: "alice", Password: "pw"}, deps)
	if first.Failure != LoginFailureNone || !first.TOTPRequired {
		t.Fatalf("expected totp round, got %+v", first)
	}
	if lock.failures["alice"] != 1 {
		t.Fatal("a pending second factor must not reset the counter")
	}

	bad := RunLogin(ctx, LoginRequest{Username: "alice", Password: "pw", Code: "nope", RequireCode: true}, deps)
	if bad.Failure != LoginFailureTOTPInvalid || lock.failures["alice"] != 2 {
		t.Fatalf("expected counted totp failure, got %+v (%d)", bad, lock.failures["alice"])
	}

	ok := RunLogin(ctx, LoginRequest{Username: "alice", Password: "pw", Code: "sec-ok", RequireCode: true}, deps)
	if ok.Failure != LoginFailureNone || !ok.TOTPUsed || ok.TOTPRequired {
		t.Fatalf("expected full success, got %+v", ok)
	}
	if lock.failures["alice"] != 0 {
		t.Fatal("full success must reset the counter")
	}

	users.users["bob"] = &stores.User{Username: "bob", PasswordHash: "h:pw", Status: stores.StatusActive}
	none := RunLogin(ctx, LoginRequest{Username: "bob", Password: "pw", Code: "123456", RequireCode: true}, deps)
	if none.Failure != LoginFailureTOTPNotConfigured {
		t.Fatalf("expected not configured, got %+v", none)
	}
}
