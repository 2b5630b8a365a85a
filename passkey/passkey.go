package passkey

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

const defaultChallengeTTL = 5 * time.Minute

var (
	ErrChallengeInvalid   = errors.New("passkey challenge invalid or expired")
	ErrNoCredentials      = errors.New("no passkeys registered")
	ErrCredentialNotFound = errors.New("passkey credential not found")
	ErrCounterReplay      = errors.New("passkey signature counter did not increase")
	ErrVerification       = errors.New("passkey verification failed")
	ErrMalformed          = errors.New("malformed passkey response")
)

// Ceremonies is the subset of *webauthn.WebAuthn used by [Service].
type Ceremonies interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, parsed *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidateDiscoverableLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// Config describes the relying party.
type Config struct {
	RPID          string
	RPDisplayName string
	Origins       []string
	ChallengeTTL  time.Duration
	Now           func() time.Time
}

// Service issues and verifies passkey ceremonies against a [stores.PasskeyStore].
type Service struct {
	wa    Ceremonies
	store *stores.PasskeyStore
	ttl   time.Duration
	now   func() time.Time
}

// New builds a Service backed by go-webauthn.
func New(cfg Config, store *stores.PasskeyStore) (*Service, error) {
	name := cfg.RPDisplayName
	if name == "" {
		name = cfg.RPID
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: name,
		RPOrigins:     cfg.Origins,
	})
	if err != nil {
		return nil, fmt.Errorf("passkey: %w", err)
	}
	return NewWithCeremonies(cfg, store, wa), nil
}

// NewWithCeremonies builds a Service around a caller-supplied ceremony runner.
func NewWithCeremonies(cfg Config, store *stores.PasskeyStore, wa Ceremonies) *Service {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = defaultChallengeTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{wa: wa, store: store, ttl: cfg.ChallengeTTL, now: cfg.Now}
}

type user struct {
	name  string
	creds []webauthn.Credential
}

func (u *user) WebAuthnID() []byte                         { return []byte(u.name) }
func (u *user) WebAuthnName() string                       { return u.name }
func (u *user) WebAuthnDisplayName() string                { return u.name }
func (u *user) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func (s *Service) loadUser(ctx context.Context, username string) (*user, []stores.PasskeyCredential, error) {
	stored, err := s.store.List(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	u := &user{name: username, creds: make([]webauthn.Credential, 0, len(stored))}
	for _, c := range stored {
		wc, err := toWebAuthn(c)
		if err != nil {
			continue
		}
		u.creds = append(u.creds, wc)
	}
	return u, stored, nil
}

// BeginRegistration returns creation options for username and stores the
// registration challenge.
func (s *Service) BeginRegistration(ctx context.Context, username string) (*protocol.CredentialCreation, error) {
	u, _, err := s.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	creation, session, err := s.wa.BeginRegistration(u,
		webauthn.WithExclusions(webauthn.Credentials(u.creds).CredentialDescriptors()),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if err := s.saveChallenge(ctx, stores.CeremonyRegistration, username, session); err != nil {
		return nil, err
	}
	return creation, nil
}

// FinishRegistration verifies an attestation for username and stores the new
// credential with a zero counter.
func (s *Service) FinishRegistration(ctx context.Context, username, name string, body []byte) (*stores.PasskeyCredential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	challenge, session, err := s.consume(ctx, parsed.Response.CollectedClientData.Challenge, stores.CeremonyRegistration)
	if err != nil {
		return nil, err
	}
	if challenge.Username != username {
		return nil, ErrChallengeInvalid
	}

	u, _, err := s.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	cred, err := s.wa.CreateCredential(u, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	if name == "" {
		name = "Passkey"
	}
	record := stores.PasskeyCredential{
		ID:              base64.RawURLEncoding.EncodeToString(cred.ID),
		PublicKey:       cred.PublicKey,
		Counter:         0,
		Transports:      transports,
		AAGUID:          cred.Authenticator.AAGUID,
		AttestationType: cred.AttestationType,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
		Name:            name,
		CreatedAt:       s.now().UnixMilli(),
	}
	if err := s.store.Put(ctx, username, record); err != nil {
		return nil, err
	}
	return &record, nil
}

// BeginLogin returns request options. An empty username starts a
// discoverable login.
func (s *Service) BeginLogin(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
		err       error
	)
	if username == "" {
		assertion, session, err = s.wa.BeginDiscoverableLogin()
	} else {
		u, _, lerr := s.loadUser(ctx, username)
		if lerr != nil {
			return nil, lerr
		}
		if len(u.creds) == 0 {
			return nil, ErrNoCredentials
		}
		assertion, session, err = s.wa.BeginLogin(u)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if err := s.saveChallenge(ctx, stores.CeremonyAuthentication, username, session); err != nil {
		return nil, err
	}
	return assertion, nil
}

// FinishLogin verifies an assertion and returns the authenticated username.
// The stored counter is advanced only after the signature verifies.
func (s *Service) FinishLogin(ctx context.Context, body []byte) (string, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	challenge, session, err := s.consume(ctx, parsed.Response.CollectedClientData.Challenge, stores.CeremonyAuthentication)
	if err != nil {
		return "", err
	}

	username := challenge.Username
	if username == "" {
		username = string(parsed.Response.UserHandle)
	}
	if username == "" {
		return "", ErrCredentialNotFound
	}

	u, stored, err := s.loadUser(ctx, username)
	if err != nil {
		return "", err
	}
	credID := base64.RawURLEncoding.EncodeToString(parsed.RawID)
	idx := -1
	for i := range stored {
		if stored[i].ID == credID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", ErrCredentialNotFound
	}

	record := stored[idx]
	counter := parsed.Response.AuthenticatorData.Counter
	if counter <= record.Counter {
		return "", ErrCounterReplay
	}

	if len(session.UserID) > 0 {
		_, err = s.wa.ValidateLogin(u, *session, parsed)
	} else {
		_, err = s.wa.ValidateDiscoverableLogin(func(_, userHandle []byte) (webauthn.User, error) {
			if !bytes.Equal(userHandle, u.WebAuthnID()) {
				return nil, ErrCredentialNotFound
			}
			return u, nil
		}, *session, parsed)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVerification, err)
	}

	record.Counter = counter
	record.BackupState = parsed.Response.AuthenticatorData.Flags.HasBackupState()
	record.LastUsedAt = s.now().UnixMilli()
	if err := s.store.Put(ctx, username, record); err != nil {
		return "", err
	}
	return username, nil
}

// List returns the credentials of username.
func (s *Service) List(ctx context.Context, username string) ([]stores.PasskeyCredential, error) {
	return s.store.List(ctx, username)
}

// Delete removes one credential of username.
func (s *Service) Delete(ctx context.Context, username, id string) error {
	ok, err := s.store.Delete(ctx, username, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *Service) saveChallenge(ctx context.Context, ceremony, username string, session *webauthn.SessionData) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.store.SaveChallenge(ctx, session.Challenge, &stores.Challenge{
		Ceremony:  ceremony,
		Username:  username,
		Session:   raw,
		CreatedAt: s.now().UnixMilli(),
	}, s.ttl)
}

func (s *Service) consume(ctx context.Context, challenge, ceremony string) (*stores.Challenge, *webauthn.SessionData, error) {
	if challenge == "" {
		return nil, nil, ErrChallengeInvalid
	}
	c, err := s.store.ConsumeChallenge(ctx, challenge)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) {
			return nil, nil, ErrChallengeInvalid
		}
		return nil, nil, err
	}
	if c.Ceremony != ceremony {
		return nil, nil, ErrChallengeInvalid
	}
	var session webauthn.SessionData
	if err := json.Unmarshal(c.Session, &session); err != nil {
		return nil, nil, ErrChallengeInvalid
	}
	return c, &session, nil
}

func toWebAuthn(c stores.PasskeyCredential) (webauthn.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(c.ID)
	if err != nil {
		return webauthn.Credential{}, err
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              id,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.Counter,
		},
	}, nil
}
