package dnsgate

import (
	"encoding/json"

	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/MrEthical07/dnsgate/upstream"
)

const (
	// RoleAdmin may use every route.
	RoleAdmin = stores.RoleAdmin
	// RoleUser is subject to its zone allow-list and cannot use admin routes.
	RoleUser = stores.RoleUser

	// AdminUsername is the distinguished identity that may fall back to the
	// legacy deployment credentials.
	AdminUsername = "admin"
)

// Identity is the authenticated caller attached to a request by the
// resolver. Credential is nil on identity-only routes.
type Identity struct {
	Username     string
	Role         string
	AllowedZones []string
	AccountIndex int
	Credential   *upstream.Credential
	// ClientMode is set when the caller supplied its own upstream token and
	// no bearer token was checked.
	ClientMode bool
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// AccountSummary is the public part of an upstream-credential slot.
type AccountSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LoginResult is returned by Login, VerifyTOTP and passkey login. When
// RequiresTOTP is set no tokens were issued.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Accounts     []AccountSummary
	Role         string
	Username     string
	RequiresTOTP bool
}

type loginSuccessBody struct {
	AccessToken  string           `json:"token"`
	RefreshToken string           `json:"refreshToken"`
	Accounts     []AccountSummary `json:"accounts"`
	Role         string           `json:"role"`
	Username     string           `json:"username"`
}

type totpPendingBody struct {
	RequiresTOTP bool   `json:"requiresTOTP"`
	Username     string `json:"username"`
}

// MarshalJSON renders a pending second round as {requiresTOTP, username}
// and a completed login with every field, accounts always a list.
func (r LoginResult) MarshalJSON() ([]byte, error) {
	if r.RequiresTOTP {
		return json.Marshal(totpPendingBody{RequiresTOTP: true, Username: r.Username})
	}
	accounts := r.Accounts
	if accounts == nil {
		accounts = []AccountSummary{}
	}
	return json.Marshal(loginSuccessBody{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Accounts:     accounts,
		Role:         r.Role,
		Username:     r.Username,
	})
}

// TokenPair is returned by Refresh.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// UserView is the admin listing shape of a user record. Digests, setup
// tokens and second-factor secrets are never included.
type UserView struct {
	Username     string   `json:"username"`
	Role         string   `json:"role"`
	Status       string   `json:"status"`
	AllowedZones []string `json:"allowedZones"`
	CreatedAt    int64    `json:"createdAt"`
}

// Invitation is the result of inviting a user. SetupToken is shown once.
type Invitation struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	SetupToken string `json:"setupToken"`
}

// InviteInput describes a user to invite.
type InviteInput struct {
	Username     string   `json:"username"`
	Role         string   `json:"role"`
	AllowedZones []string `json:"allowedZones"`
}

// UserUpdate changes the role or zone list of a user. Nil fields are kept.
type UserUpdate struct {
	Role         *string   `json:"role"`
	AllowedZones *[]string `json:"allowedZones"`
}

// SlotInput describes a new upstream-credential slot.
type SlotInput struct {
	Name  string `json:"name"`
	Token string `json:"token"`
	Kind  string `json:"kind"`
	Email string `json:"email"`
}

// SlotView is a slot with its credential redacted to the last 4 characters.
type SlotView struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Token string `json:"token"`
	Email string `json:"email,omitempty"`
}

// TOTPSetup carries a freshly generated, not yet active secret.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// Profile is the /api/me view of the caller.
type Profile struct {
	Username     string   `json:"username"`
	Role         string   `json:"role"`
	AllowedZones []string `json:"allowedZones"`
	TOTPEnabled  bool     `json:"totpEnabled"`
	Passkeys     int      `json:"passkeys"`
}

// Settings are the public deployment settings readable by any user.
type Settings struct {
	RegistrationOpen bool `json:"registrationOpen"`
	PasskeysEnabled  bool `json:"passkeysEnabled"`
}

// PasskeyView is the listing shape of a stored passkey.
type PasskeyView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"createdAt"`
	LastUsedAt int64  `json:"lastUsedAt,omitempty"`
	Synced     bool   `json:"synced"`
}
