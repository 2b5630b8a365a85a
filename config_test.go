package dnsgate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 900*time.Second, cfg.Lockout.Cooldown)
	assert.Equal(t, RateRule{Max: 10, Window: time.Minute}, cfg.RateLimit.Rules["/api/login"])
	assert.Equal(t, uint(1), cfg.TOTP.Skew)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{"refresh shorter than access", func(c *Config) { c.JWT.RefreshTTL = time.Minute }, false},
		{"leeway too large", func(c *Config) { c.JWT.Leeway = 3 * time.Minute }, false},
		{"low iterations", func(c *Config) { c.Password.Iterations = 1000 }, false},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }, false},
		{"relative rate path", func(c *Config) { c.RateLimit.Rules["api/x"] = RateRule{Max: 1, Window: time.Second} }, false},
		{"zero rate max", func(c *Config) { c.RateLimit.Rules["/api/x"] = RateRule{Window: time.Second} }, false},
		{"totp digits", func(c *Config) { c.TOTP.Digits = 7 }, false},
		{"totp skew", func(c *Config) { c.TOTP.Skew = 4 }, false},
		{"passkey without rp id", func(c *Config) {
			c.Passkey.Enabled = true
			c.Passkey.Origins = []string{"https://dash.example.com"}
		}, false},
		{"passkey complete", func(c *Config) {
			c.Passkey.Enabled = true
			c.Passkey.RPID = "dash.example.com"
			c.Passkey.Origins = []string{"https://dash.example.com"}
		}, true},
		{"legacy global key without email", func(c *Config) {
			c.Legacy.Accounts = []LegacyAccount{{Token: "k", Kind: "global_key"}}
		}, false},
		{"legacy unknown kind", func(c *Config) {
			c.Legacy.Accounts = []LegacyAccount{{Token: "k", Kind: "oauth"}}
		}, false},
		{"legacy token", func(c *Config) {
			c.Legacy.Accounts = []LegacyAccount{{Token: "k"}}
		}, true},
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dnsgate.toml")
	data := `
[jwt]
secret = "from-file"
access_ttl = "10m"

[registration]
open = false

[rate_limit.rules."/api/login"]
max = 3
window = "30s"

[[legacy.accounts]]
name = "Secondary"
token = "file-token"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := loadConfig(path, envMap(map[string]string{
		"JWT_SECRET":         "from-env",
		"ALLOW_REGISTRATION": "true",
		"CF_API_TOKEN":       "env-token",
		"CF_ACCOUNT_NAME":    "Primary",
		"PASSKEY_RP_ID":      "localhost",
		"PASSKEY_ORIGINS":    "http://localhost:8080, http://127.0.0.1:8080",
		"REDIS_ADDR":         "redis:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTTL)
	assert.True(t, cfg.Registration.Open)
	assert.Equal(t, RateRule{Max: 3, Window: 30 * time.Second}, cfg.RateLimit.Rules["/api/login"])
	assert.Equal(t, "redis:6379", cfg.Server.RedisAddr)
	assert.True(t, cfg.Passkey.Enabled)
	assert.Equal(t, []string{"http://localhost:8080", "http://127.0.0.1:8080"}, cfg.Passkey.Origins)

	require.Len(t, cfg.Legacy.Accounts, 2)
	assert.Equal(t, LegacyAccount{Name: "Primary", Token: "env-token", Kind: "api_token"}, cfg.Legacy.Accounts[0])
	assert.Equal(t, "Secondary", cfg.Legacy.Accounts[1].Name)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[jwt]\nsecrte = \"typo\"\n"), 0o600))

	_, err := loadConfig(path, envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secrte")
}

func TestLoadConfigBadBoolEnv(t *testing.T) {
	_, err := loadConfig("", envMap(map[string]string{"ALLOW_REGISTRATION": "maybe"}))
	require.Error(t, err)
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Passkey.Origins = []string{"https://a"}
	out := cloneConfig(cfg)
	out.RateLimit.Rules["/api/login"] = RateRule{Max: 1, Window: time.Second}
	out.Passkey.Origins[0] = "https://b"

	assert.Equal(t, 10, cfg.RateLimit.Rules["/api/login"].Max)
	assert.Equal(t, "https://a", cfg.Passkey.Origins[0])
}

func TestLoadConfigHasNoUpgradeToggle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade.toml")
	require.NoError(t, os.WriteFile(path, []byte("[password]\nupgrade_on_login = false\n"), 0o600))

	_, err := loadConfig(path, envMap(nil))
	require.Error(t, err, "legacy digest upgrades cannot be switched off")
}
