package dnsgate

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/dnsgate/internal/audit"
	"github.com/MrEthical07/dnsgate/internal/flows"
	"github.com/MrEthical07/dnsgate/internal/limiters"
	"github.com/MrEthical07/dnsgate/internal/logging"
	"github.com/MrEthical07/dnsgate/internal/rate"
	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/MrEthical07/dnsgate/jwt"
	"github.com/MrEthical07/dnsgate/passkey"
	"github.com/MrEthical07/dnsgate/password"
	"github.com/MrEthical07/dnsgate/upstream"
	"github.com/redis/go-redis/v9"
)

// Upstream is the provider client used for zone-name lookups and for
// checking credentials before they are stored. *upstream.Client
// implements it.
type Upstream interface {
	upstream.ZoneLookup
	Verify(ctx context.Context, cred upstream.Credential) error
}

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	auditSink AuditSink
	logger    logging.Logger
	upstream  Upstream

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the key/value store shared by every component.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// WithUpstream enables zone-level access checks and credential verification
// on slot creation. Without it, zone-addressed routes fail closed for users
// with a non-empty allow-list.
func (b *Builder) WithUpstream(u Upstream) *Builder {
	b.upstream = u
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = logging.Nop{}
	}

	engine := &Engine{
		config:       cfg,
		clock:        now,
		logger:       logger,
		users:        stores.NewUserStore(b.redis),
		accounts:     stores.NewAccountStore(b.redis),
		ledger:       stores.NewRevocationLedger(b.redis),
		totpStore:    stores.NewTOTPStore(b.redis),
		passkeyStore: stores.NewPasskeyStore(b.redis),
		upstream:     b.upstream,
		metrics:      NewMetrics(cfg.Metrics),
		totp:         newTOTPVerifier(cfg.TOTP, now),
	}

	rules := make(map[string]rate.Rule, len(cfg.RateLimit.Rules))
	for path, r := range cfg.RateLimit.Rules {
		rules[path] = rate.Rule{Max: r.Max, Window: r.Window}
	}
	engine.rateLimiter = rate.New(b.redis, rules, now)
	engine.lockout = limiters.NewLockout(b.redis, limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Cooldown:  cfg.Lockout.Cooldown,
	}, now)

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.audit.OnDrop(func(ev AuditEvent) {
		logger.Warn(context.Background(), "audit event dropped", "event", ev.EventType)
	})

	ph, err := password.New(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltLength: cfg.Password.SaltLength,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	if cfg.JWT.Secret != "" {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			RefreshTTL:    cfg.JWT.RefreshTTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte(cfg.JWT.Secret),
			Issuer:        cfg.JWT.Issuer,
			Leeway:        cfg.JWT.Leeway,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	if cfg.Passkey.Enabled {
		svc, err := passkey.New(passkey.Config{
			RPID:          cfg.Passkey.RPID,
			RPDisplayName: cfg.Passkey.RPDisplayName,
			Origins:       cfg.Passkey.Origins,
			ChallengeTTL:  cfg.Passkey.ChallengeTTL,
			Now:           now,
		}, engine.passkeyStore)
		if err != nil {
			return nil, err
		}
		engine.passkeys = svc
	}

	var legacyDigest string
	if cfg.Legacy.AdminPassword != "" {
		legacyDigest = password.LegacyDigest(cfg.Legacy.AdminPassword)
	}

	engine.flows = flows.Deps{
		Login: flows.LoginDeps{
			Lockout:           engine.lockout,
			Users:             engine.users,
			VerifyPassword:    ph.Verify,
			HashPassword:      ph.Hash,
			NeedsUpgrade:      ph.NeedsUpgrade,
			AdminUsername:     AdminUsername,
			LegacyAdminDigest: legacyDigest,
			TOTPSecret:        engine.activeTOTPSecret,
			ValidateTOTP:      engine.consumeTOTP,
			Now:               now,
			Warn:              logger.Warn,
		},
		Refresh: flows.RefreshDeps{
			ParseRefresh:  engine.parseRefresh,
			IssueAccess:   engine.issueAccess,
			IssueRefresh:  engine.issueRefresh,
			RemainingLife: engine.remainingLife,
			Ledger:        engine.ledger,
			Users:         engine.users,
			Warn:          logger.Warn,
		},
		Logout: flows.LogoutDeps{
			ParseRefresh: engine.parseRefresh,
			Ledger:       engine.ledger,
			RevokeTTL:    cfg.JWT.RefreshTTL,
		},
	}

	b.built = true

	return engine, nil
}
