package dnsgate

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpVerifier wraps RFC 6238 generation and checking with SHA1 and the
// configured digits, period and skew.
type totpVerifier struct {
	cfg TOTPConfig
	now func() time.Time
}

func newTOTPVerifier(cfg TOTPConfig, now func() time.Time) *totpVerifier {
	return &totpVerifier{cfg: cfg, now: now}
}

func (v *totpVerifier) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    v.cfg.Period,
		Skew:      v.cfg.Skew,
		Digits:    otp.Digits(v.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Generate creates a random base32 secret and its otpauth:// URI for
// username.
func (v *totpVerifier) Generate(username string) (TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.cfg.Issuer,
		AccountName: username,
		Period:      v.cfg.Period,
		Digits:      otp.Digits(v.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPSetup{}, err
	}
	return TOTPSetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// Validate reports whether code matches secret at the current step or
// within Skew steps of it.
func (v *totpVerifier) Validate(code, secret string) bool {
	_, ok := v.Match(code, secret)
	return ok
}

// Match is Validate that also reports the time step the code belongs to.
func (v *totpVerifier) Match(code, secret string) (int64, bool) {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" || len(code) != v.cfg.Digits {
		return 0, false
	}
	period := int64(v.cfg.Period)
	now := v.now().Unix() / period
	skew := int64(v.cfg.Skew)

	for step := now - skew; step <= now+skew; step++ {
		if step < 0 {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), v.opts())
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// code returns the current code for secret.
func (v *totpVerifier) code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), v.opts())
}
