package dnsgate

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/MrEthical07/dnsgate/password"
	"github.com/MrEthical07/dnsgate/upstream"
)

func TestRegisterOpenRegistration(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Registration.Open = true }, nil)
	ctx := context.Background()

	view, err := env.engine.Register(ctx, "Bob", "bob-digest")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if view.Username != "bob" || view.Role != RoleUser || view.Status != "active" {
		t.Fatalf("unexpected view %+v", view)
	}

	_, err = env.engine.Register(ctx, "bob", "other-digest")
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if ErrorStatus(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %d", ErrorStatus(err))
	}

	if _, err := env.engine.Login(ctx, "bob", "bob-digest"); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestRegisterClosed(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	_, err := env.engine.Register(context.Background(), "bob", "bob-digest")
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("expected ErrRegistrationClosed, got %v", err)
	}
	if ErrorStatus(err) != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", ErrorStatus(err))
	}
	if env.mr.Exists("USER:bob") {
		t.Fatal("closed registration must not create a record")
	}
}

func TestRegisterCannotClaimAdminName(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Registration.Open = true
		cfg.Legacy.AdminPassword = "s3cret"
		cfg.Legacy.Accounts = []LegacyAccount{{Name: "Prod", Token: "deployment-cf-token"}}
	}, nil)
	ctx := context.Background()

	for _, name := range []string{"admin", "Admin"} {
		if _, err := env.engine.Register(ctx, name, "attacker-digest"); !errors.Is(err, ErrUserExists) {
			t.Fatalf("register %q: expected ErrUserExists, got %v", name, err)
		}
	}
	root := &Identity{Username: "root", Role: RoleAdmin}
	if _, err := env.engine.Invite(ctx, root, InviteInput{Username: "admin"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("invite admin: expected ErrUserExists, got %v", err)
	}
	if env.mr.Exists("USER:admin") {
		t.Fatal("reserved name must not be created by registration or invitation")
	}

	res, err := env.engine.Login(ctx, "admin", password.LegacyDigest("s3cret"))
	if err != nil {
		t.Fatalf("legacy admin login: %v", err)
	}
	if res.Role != RoleAdmin || len(res.Accounts) != 1 {
		t.Fatalf("expected bootstrapped admin with legacy account, got %+v", res)
	}
}

func TestLegacyCredentialsNeedAdminRole(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Legacy.Accounts = []LegacyAccount{{Name: "Prod", Token: "deployment-cf-token"}}
	}, nil)
	ctx := context.Background()
	env.seedUser(t, AdminUsername, "user-digest", RoleUser)

	res, err := env.engine.Login(ctx, "admin", "user-digest")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(res.Accounts) != 0 {
		t.Fatalf("user-role admin name must not see legacy accounts, got %+v", res.Accounts)
	}
	if env.mr.Exists("USER_TOKENS:admin") {
		t.Fatal("legacy slots must not be migrated to a user-role record")
	}

	_, err = env.engine.ResolveCredential(ctx, &Identity{Username: AdminUsername, Role: RoleUser}, 0)
	if !errors.Is(err, ErrAccountNotConfigured) {
		t.Fatalf("expected ErrAccountNotConfigured, got %v", err)
	}
}

func TestInvitationSetupActivatesAccount(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Registration.Open = true }, nil)
	ctx := context.Background()
	admin := &Identity{Username: AdminUsername, Role: RoleAdmin}

	inv, err := env.engine.Invite(ctx, admin, InviteInput{Username: "carol", AllowedZones: []string{"Example.com", " example.com "}})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if inv.SetupToken == "" || inv.Role != RoleUser {
		t.Fatalf("unexpected invitation %+v", inv)
	}

	if _, err := env.engine.Register(ctx, "carol", "carol-digest"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("register over a pending invitation: expected ErrUserExists, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "carol", "anything"); !errors.Is(err, ErrAccountPending) {
		t.Fatalf("pending login: expected ErrAccountPending, got %v", err)
	}

	if err := env.engine.SetupAccount(ctx, "carol", "wrong-token", "carol-digest"); !errors.Is(err, ErrSetupTokenInvalid) {
		t.Fatalf("expected ErrSetupTokenInvalid, got %v", err)
	}
	if err := env.engine.SetupAccount(ctx, "carol", inv.SetupToken, "carol-digest"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := env.engine.SetupAccount(ctx, "carol", inv.SetupToken, "again"); !errors.Is(err, ErrSetupTokenInvalid) {
		t.Fatalf("setup token must be single use, got %v", err)
	}

	res, err := env.engine.Login(ctx, "carol", "carol-digest")
	if err != nil {
		t.Fatalf("login after setup: %v", err)
	}
	id, _ := env.engine.Authenticate(ctx, res.AccessToken)
	if err := env.engine.LoadIdentity(ctx, id); err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if len(id.AllowedZones) != 1 || id.AllowedZones[0] != "example.com" {
		t.Fatalf("expected normalized zones, got %v", id.AllowedZones)
	}
}

func TestInviteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := &Identity{Username: "alice", Role: RoleUser}

	if _, err := env.engine.Invite(context.Background(), user, InviteInput{Username: "dave"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := env.engine.Invite(context.Background(), &Identity{Username: "root", Role: RoleAdmin}, InviteInput{Username: "dave", Role: "owner"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seedUser(t, "alice", "old-digest", RoleUser)
	ctx := context.Background()
	id := &Identity{Username: "alice", Role: RoleUser}

	if err := env.engine.ChangePassword(ctx, id, "wrong", "new-digest"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, id, "old-digest", "new-digest"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice", "old-digest"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice", "new-digest"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUpdateAndDeleteUser(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seedUser(t, "root", "root-digest", RoleAdmin)
	env.seedUser(t, "alice", "alice-digest", RoleUser)
	ctx := context.Background()
	admin := &Identity{Username: "root", Role: RoleAdmin}

	role := RoleAdmin
	zones := []string{"a.com", "B.com"}
	view, err := env.engine.UpdateUser(ctx, admin, "alice", UserUpdate{Role: &role, AllowedZones: &zones})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.Role != RoleAdmin || len(view.AllowedZones) != 2 || view.AllowedZones[1] != "b.com" {
		t.Fatalf("unexpected view %+v", view)
	}

	demote := RoleUser
	if _, err := env.engine.UpdateUser(ctx, admin, "root", UserUpdate{Role: &demote}); !errors.Is(err, ErrValidation) {
		t.Fatalf("self demotion: expected ErrValidation, got %v", err)
	}
	if err := env.engine.DeleteUser(ctx, admin, "root"); !errors.Is(err, ErrValidation) {
		t.Fatalf("self delete: expected ErrValidation, got %v", err)
	}

	aliceID := &Identity{Username: "alice", Role: RoleUser}
	if _, err := env.engine.AddSlot(ctx, aliceID, SlotInput{Name: "main", Token: "tok-123456"}); err != nil {
		t.Fatalf("add slot: %v", err)
	}
	_, _ = env.engine.Login(ctx, "alice", "wrong")

	if err := env.engine.DeleteUser(ctx, admin, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, key := range []string{"USER:alice", "USER_TOKENS:alice", "LOGIN_ATTEMPTS:alice"} {
		if env.mr.Exists(key) {
			t.Fatalf("%s should be gone", key)
		}
	}
	users, err := env.engine.ListUsers(ctx, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 || users[0].Username != "root" {
		t.Fatalf("unexpected users %+v", users)
	}
	if err := env.engine.DeleteUser(ctx, admin, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSlotsLifecycle(t *testing.T) {
	up := &fakeUpstream{}
	env := newTestEnv(t, nil, up)
	env.seedUser(t, "alice", "alice-digest", RoleUser)
	ctx := context.Background()
	id := &Identity{Username: "alice", Role: RoleUser}

	first, err := env.engine.AddSlot(ctx, id, SlotInput{Name: "main", Token: "token-aaaa1111"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := env.engine.AddSlot(ctx, id, SlotInput{Name: "other", Token: "token-bbbb2222"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.ID != 0 || second.ID != 1 {
		t.Fatalf("expected indices 0 and 1, got %d and %d", first.ID, second.ID)
	}
	if first.Token != "****1111" {
		t.Fatalf("expected redacted token, got %q", first.Token)
	}

	if err := env.engine.DeleteSlot(ctx, id, 0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third, err := env.engine.AddSlot(ctx, id, SlotInput{Name: "third", Token: "token-cccc3333"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if third.ID != 2 {
		t.Fatalf("new slot must go past the highest index, got %d", third.ID)
	}

	slots, err := env.engine.ListSlots(ctx, id)
	if err != nil || len(slots) != 2 {
		t.Fatalf("expected two slots, got %+v (%v)", slots, err)
	}
	if err := env.engine.DeleteSlot(ctx, id, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	up.verifyErr = upstream.ErrBadCredential
	if _, err := env.engine.AddSlot(ctx, id, SlotInput{Name: "bad", Token: "token-dddd"}); !errors.Is(err, ErrUpstreamCredentialRejected) {
		t.Fatalf("expected ErrUpstreamCredentialRejected, got %v", err)
	}
	if _, err := env.engine.AddSlot(ctx, id, SlotInput{Name: "gk", Token: "key", Kind: "global_key"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("global key without email: expected ErrValidation, got %v", err)
	}
}

func TestResolveCredential(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Legacy.Accounts = []LegacyAccount{
			{Name: "Primary", Token: "legacy-primary"},
			{Name: "Global", Token: "legacy-key", Kind: "global_key", Email: "ops@example.com"},
		}
	}, nil)
	ctx := context.Background()
	admin := &Identity{Username: AdminUsername, Role: RoleAdmin}
	alice := &Identity{Username: "alice", Role: RoleUser}

	cred, err := env.engine.ResolveCredential(ctx, admin, 1)
	if err != nil {
		t.Fatalf("admin fallback: %v", err)
	}
	if cred.Token != "legacy-key" || cred.Kind != "global_key" || cred.Email != "ops@example.com" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if _, err := env.engine.ResolveCredential(ctx, admin, 5); !errors.Is(err, ErrAccountNotConfigured) {
		t.Fatalf("out of range: expected ErrAccountNotConfigured, got %v", err)
	}
	if _, err := env.engine.ResolveCredential(ctx, alice, 0); !errors.Is(err, ErrAccountNotConfigured) {
		t.Fatalf("non-admin must not fall back, got %v", err)
	}

	if _, err := env.engine.AddSlot(ctx, alice, SlotInput{Name: "own", Token: "alice-token"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cred, err = env.engine.ResolveCredential(ctx, alice, 0)
	if err != nil || cred.Token != "alice-token" || cred.Kind != "api_token" {
		t.Fatalf("expected own slot, got %+v (%v)", cred, err)
	}

	if _, err := env.engine.AddSlot(ctx, admin, SlotInput{Name: "own", Token: "admin-token"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cred, err = env.engine.ResolveCredential(ctx, admin, 0)
	if err != nil || cred.Token != "admin-token" {
		t.Fatalf("stored slot must win over legacy, got %+v (%v)", cred, err)
	}
}

func TestCheckZone(t *testing.T) {
	up := &fakeUpstream{zones: map[string]string{"z1": "Example.com", "z2": "other.com"}}
	env := newTestEnv(t, nil, up)
	ctx := context.Background()
	cred := &upstream.Credential{Token: "t"}

	restricted := &Identity{Username: "alice", Role: RoleUser, AllowedZones: []string{"example.com"}, Credential: cred}
	if err := env.engine.CheckZone(ctx, restricted, "z1"); err != nil {
		t.Fatalf("allowed zone: %v", err)
	}
	if err := env.engine.CheckZone(ctx, restricted, "z2"); !errors.Is(err, ErrZoneNotAllowed) {
		t.Fatalf("expected ErrZoneNotAllowed, got %v", err)
	}
	if err := env.engine.CheckZone(ctx, restricted, "unknown"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("failed lookup must deny, got %v", err)
	}
	if ErrorStatus(ErrUpstreamUnavailable) != http.StatusForbidden {
		t.Fatal("a failed zone lookup must surface as 403")
	}

	lookups := up.lookups
	open := &Identity{Username: "bob", Role: RoleUser, Credential: cred}
	if err := env.engine.CheckZone(ctx, open, "z2"); err != nil {
		t.Fatalf("empty list allows all: %v", err)
	}
	admin := &Identity{Username: "root", Role: RoleAdmin, AllowedZones: []string{"nothing.com"}, Credential: cred}
	if err := env.engine.CheckZone(ctx, admin, "z2"); err != nil {
		t.Fatalf("admins bypass zone checks: %v", err)
	}
	if up.lookups != lookups {
		t.Fatal("unrestricted callers must not trigger a lookup")
	}
}

func TestProfileAndSettings(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Registration.Open = true }, nil)
	env.seedUser(t, "alice", "alice-digest", RoleUser)
	ctx := context.Background()

	p, err := env.engine.Profile(ctx, &Identity{Username: "alice", Role: RoleUser})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Username != "alice" || p.TOTPEnabled || p.Passkeys != 0 || p.AllowedZones == nil {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := env.engine.Profile(ctx, &Identity{Username: "ghost", Role: RoleUser}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("missing user: expected ErrSessionInvalid, got %v", err)
	}

	s := env.engine.Settings()
	if !s.RegistrationOpen || s.PasskeysEnabled {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestPasskeyRoutesDisabled(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	if _, err := env.engine.PasskeyLoginOptions(ctx, "alice"); !errors.Is(err, ErrPasskeyDisabled) {
		t.Fatalf("expected ErrPasskeyDisabled, got %v", err)
	}
	if _, err := env.engine.PasskeyLoginVerify(ctx, []byte(`{}`)); !errors.Is(err, ErrPasskeyDisabled) {
		t.Fatalf("expected ErrPasskeyDisabled, got %v", err)
	}
}

func TestPasskeyLoginRejectsBadAssertion(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Passkey.Enabled = true
		cfg.Passkey.RPID = "localhost"
		cfg.Passkey.Origins = []string{"http://localhost:8080"}
	}, nil)
	env.seedUser(t, "alice", "alice-digest", RoleUser)
	ctx := context.Background()

	if _, err := env.engine.PasskeyLoginOptions(ctx, "alice"); !errors.Is(err, ErrPasskeyInvalid) {
		t.Fatalf("no registered passkeys: expected ErrPasskeyInvalid, got %v", err)
	}
	if _, err := env.engine.PasskeyLoginOptions(ctx, ""); err != nil {
		t.Fatalf("discoverable options: %v", err)
	}
	if _, err := env.engine.PasskeyLoginVerify(ctx, []byte(`{"id":"x"}`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("malformed assertion: expected ErrValidation, got %v", err)
	}
	if !env.engine.Settings().PasskeysEnabled {
		t.Fatal("settings should report passkeys enabled")
	}
}
