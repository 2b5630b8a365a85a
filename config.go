package dnsgate

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of the gateway. Build one with [DefaultConfig]
// or [LoadConfig] and pass it to [Builder.WithConfig].
type Config struct {
	JWT          JWTConfig          `toml:"jwt"`
	Password     PasswordConfig     `toml:"password"`
	Lockout      LockoutConfig      `toml:"lockout"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	TOTP         TOTPConfig         `toml:"totp"`
	Passkey      PasskeyConfig      `toml:"passkey"`
	Registration RegistrationConfig `toml:"registration"`
	Legacy       LegacyConfig       `toml:"legacy"`
	Audit        AuditConfig        `toml:"audit"`
	Metrics      MetricsConfig      `toml:"metrics"`
	CORS         CORSConfig         `toml:"cors"`
	Server       ServerConfig       `toml:"server"`

	// Now overrides the clock used by lockout, rate limiting, tokens and
	// TOTP. Nil means time.Now.
	Now func() time.Time `toml:"-"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes. An empty Secret is
// allowed at build time; token issuance then fails with
// [ErrServerMisconfigured].
type JWTConfig struct {
	Secret     string        `toml:"secret"`
	AccessTTL  time.Duration `toml:"access_ttl"`
	RefreshTTL time.Duration `toml:"refresh_ttl"`
	Issuer     string        `toml:"issuer"`
	Leeway     time.Duration `toml:"leeway"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Iterations int `toml:"iterations"`
	SaltLength int `toml:"salt_length"`
	KeyLength  int `toml:"key_length"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	Threshold int           `toml:"threshold"`
	Cooldown  time.Duration `toml:"cooldown"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateRule bounds one endpoint to Max requests per Window.
type RateRule struct {
	Max    int           `toml:"max"`
	Window time.Duration `toml:"window"`
}

// RateLimitConfig maps request paths to their fixed-window rule. Paths
// absent from Rules are never counted.
type RateLimitConfig struct {
	Enabled bool                `toml:"enabled"`
	Rules   map[string]RateRule `toml:"rules"`
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer string `toml:"issuer"`
	Digits int    `toml:"digits"`
	Period uint   `toml:"period"`
	// Skew is the number of periods accepted on either side of now.
	Skew       uint          `toml:"skew"`
	PendingTTL time.Duration `toml:"pending_ttl"`
}

/*
====================================
PASSKEY CONFIG
====================================
*/

type PasskeyConfig struct {
	Enabled       bool          `toml:"enabled"`
	RPID          string        `toml:"rp_id"`
	RPDisplayName string        `toml:"rp_display_name"`
	Origins       []string      `toml:"origins"`
	ChallengeTTL  time.Duration `toml:"challenge_ttl"`
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

type RegistrationConfig struct {
	// Open allows self-service registration through /api/register.
	Open bool `toml:"open"`
}

/*
====================================
LEGACY CONFIG
====================================
*/

// LegacyAccount is an upstream credential configured at deployment level
// rather than per user.
type LegacyAccount struct {
	Name  string `toml:"name"`
	Token string `toml:"token"`
	Kind  string `toml:"kind"`
	Email string `toml:"email"`
}

// LegacyConfig holds the single-admin deployment settings that predate
// per-user records. AdminPassword bootstraps USER:admin on first login and
// Accounts seed the admin's upstream-credential slots.
type LegacyConfig struct {
	AdminPassword string          `toml:"admin_password"`
	Accounts      []LegacyAccount `toml:"accounts"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
	// Stream is the Redis stream the server binary appends events to. Empty
	// disables the stream sink.
	Stream       string `toml:"stream"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

/*
====================================
CORS CONFIG
====================================
*/

// CORSConfig controls the origin reflection and the JSON content-type
// requirement on mutating requests.
type CORSConfig struct {
	AllowedMethods []string      `toml:"allowed_methods"`
	AllowedHeaders []string      `toml:"allowed_headers"`
	MaxAge         time.Duration `toml:"max_age"`
	// UploadSuffixes lists path suffixes exempt from the JSON content-type
	// requirement.
	UploadSuffixes []string `toml:"upload_suffixes"`
}

/*
====================================
SERVER CONFIG
====================================
*/

type ServerConfig struct {
	ListenAddr        string        `toml:"listen_addr"`
	RedisAddr         string        `toml:"redis_addr"`
	UpstreamBaseURL   string        `toml:"upstream_base_url"`
	UpstreamTimeout   time.Duration `toml:"upstream_timeout"`
	LogLevel          string        `toml:"log_level"`
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "dnsgate",
		},
		Password: PasswordConfig{
			Iterations: 100000,
			SaltLength: 16,
			KeyLength:  32,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Cooldown:  900 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rules: map[string]RateRule{
				"/api/login":                 {Max: 10, Window: time.Minute},
				"/api/verify-totp":           {Max: 10, Window: time.Minute},
				"/api/register":              {Max: 5, Window: time.Hour},
				"/api/setup-account":         {Max: 5, Window: 15 * time.Minute},
				"/api/refresh":               {Max: 30, Window: time.Minute},
				"/api/passkey/login-options": {Max: 20, Window: time.Minute},
				"/api/passkey/login-verify":  {Max: 10, Window: time.Minute},
			},
		},
		TOTP: TOTPConfig{
			Issuer:     "DNS Dashboard",
			Digits:     6,
			Period:     30,
			Skew:       1,
			PendingTTL: 10 * time.Minute,
		},
		Passkey: PasskeyConfig{
			Enabled:       false,
			RPDisplayName: "DNS Dashboard",
			ChallengeTTL:  5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			StreamMaxLen: 10000,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Cloudflare-Token", "X-Managed-Account-Index"},
			MaxAge:         24 * time.Hour,
			UploadSuffixes: []string{"/dns_records/import"},
		},
		Server: ServerConfig{
			ListenAddr:        ":8080",
			RedisAddr:         "127.0.0.1:6379",
			UpstreamBaseURL:   "https://api.cloudflare.com/client/v4",
			UpstreamTimeout:   10 * time.Second,
			LogLevel:          "info",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[string]RateRule, len(cfg.RateLimit.Rules))
		for k, v := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[k] = v
		}
	}
	out.Passkey.Origins = cloneStrings(cfg.Passkey.Origins)
	out.Legacy.Accounts = append([]LegacyAccount(nil), cfg.Legacy.Accounts...)
	out.CORS.AllowedMethods = cloneStrings(cfg.CORS.AllowedMethods)
	out.CORS.AllowedHeaders = cloneStrings(cfg.CORS.AllowedHeaders)
	out.CORS.UploadSuffixes = cloneStrings(cfg.CORS.UploadSuffixes)
	return out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}

/*
====================================
LOADING
====================================
*/

// LoadConfig starts from [DefaultConfig], overlays the TOML file at path
// (skipped when path is empty) and then the process environment, and
// validates the result. Unknown TOML keys are rejected.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.LookupEnv)
}

func loadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("JWT_SECRET", &cfg.JWT.Secret)
	str("ADMIN_PASSWORD", &cfg.Legacy.AdminPassword)
	str("REDIS_ADDR", &cfg.Server.RedisAddr)
	str("LISTEN_ADDR", &cfg.Server.ListenAddr)
	str("LOG_LEVEL", &cfg.Server.LogLevel)
	str("UPSTREAM_BASE_URL", &cfg.Server.UpstreamBaseURL)
	str("PASSKEY_RP_ID", &cfg.Passkey.RPID)

	if v, ok := lookup("ALLOW_REGISTRATION"); ok && v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALLOW_REGISTRATION: %w", err)
		}
		cfg.Registration.Open = open
	}

	if v, ok := lookup("PASSKEY_ORIGINS"); ok && v != "" {
		cfg.Passkey.Origins = splitList(v)
	}
	if cfg.Passkey.RPID != "" && len(cfg.Passkey.Origins) > 0 {
		cfg.Passkey.Enabled = true
	}

	if token, ok := lookup("CF_API_TOKEN"); ok && strings.TrimSpace(token) != "" {
		acct := LegacyAccount{
			Name:  "Default",
			Token: strings.TrimSpace(token),
			Kind:  "api_token",
		}
		str("CF_ACCOUNT_NAME", &acct.Name)
		str("CF_API_TOKEN_KIND", &acct.Kind)
		str("CF_API_EMAIL", &acct.Email)
		// The environment credential is always the first legacy slot.
		cfg.Legacy.Accounts = append([]LegacyAccount{acct}, cfg.Legacy.Accounts...)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Iterations < 10000 {
		return errors.New("Password Iterations must be >= 10000")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Cooldown < time.Second {
		return errors.New("Lockout Cooldown must be >= 1s")
	}

	// Rate limit
	for path, rule := range c.RateLimit.Rules {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("RateLimit rule %q must be an absolute path", path)
		}
		if rule.Max <= 0 || rule.Window <= 0 {
			return fmt.Errorf("RateLimit rule %q must have Max > 0 and Window > 0", path)
		}
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be <= 3")
	}
	if c.TOTP.PendingTTL <= 0 {
		return errors.New("TOTP PendingTTL must be > 0")
	}

	// Passkey
	if c.Passkey.Enabled {
		if strings.TrimSpace(c.Passkey.RPID) == "" {
			return errors.New("Passkey RPID required when enabled")
		}
		if len(c.Passkey.Origins) == 0 {
			return errors.New("Passkey Origins required when enabled")
		}
		if c.Passkey.ChallengeTTL <= 0 {
			return errors.New("Passkey ChallengeTTL must be > 0")
		}
	}

	// Legacy
	for i, acct := range c.Legacy.Accounts {
		if strings.TrimSpace(acct.Token) == "" {
			return fmt.Errorf("Legacy account %d has no token", i)
		}
		switch acct.Kind {
		case "", "api_token":
		case "global_key":
			if strings.TrimSpace(acct.Email) == "" {
				return fmt.Errorf("Legacy account %d: global_key requires email", i)
			}
		default:
			return fmt.Errorf("Legacy account %d: unknown kind %q", i, acct.Kind)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.StreamMaxLen < 0 {
		return errors.New("Audit StreamMaxLen must be >= 0")
	}

	// Server
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return errors.New("Server ListenAddr required")
	}
	if c.Server.UpstreamTimeout < 0 {
		return errors.New("Server UpstreamTimeout must be >= 0")
	}

	return nil
}
