package warden

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/warden/internal/audit"
	"github.com/MrEthical07/warden/internal/flows"
	"github.com/MrEthical07/warden/internal/rate"
	"github.com/MrEthical07/warden/jwt"
	"github.com/MrEthical07/warden/session"
	"github.com/MrEthical07/warden/snowflake"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger
	now    func() time.Time

	auditSink AuditSink
	notifier  Notifier

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for sessions, the blacklist, the bot guard
// and rate limiting. Single-node and sentinel clients are supported; the Lua
// scripts discover keys with SCAN and are not cluster safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Without one the engine logs nothing.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNotifier sets where email requests and confirmation events go. Without
// one they are published on Verify.Channel through the Redis client.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces time.Now for token issuance, refresh window checks, id
// generation and rate limit windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client required", ErrConfiguration)
	}

	cfg := cloneConfig(b.config)
	cfg.JWT.SigningMethod = strings.ToLower(strings.TrimSpace(cfg.JWT.SigningMethod))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- IDS --------
	ids, err := snowflake.New(cfg.IDs.WorkerID, snowflake.WithEpoch(cfg.IDs.Epoch), snowflake.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	jti := jwt.UUIDSource
	if cfg.IDs.JTIFormat == JTIFormatSnowflake {
		jti = func() (string, error) {
			id, err := ids.Generate()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	}, jwt.WithClock(now), jwt.WithJTISource(jti))
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	store := session.NewStore(b.redis, cfg.Store.SessionPrefix, cfg.Store.OperationTimeout)
	guard := session.NewBotGuard(store)
	limiter := rate.New(b.redis, cfg.Store.OperationTimeout, rate.WithClock(now))
	codes := session.NewCodeStore(store, cfg.Verify.CodePrefix)

	notifier := b.notifier
	if notifier == nil {
		notifier = internalaudit.NewRedisPublishSink(b.redis, cfg.Verify.Channel, logger)
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		logger:       logger,
		now:          now,
		ids:          ids,
		jwtManager:   jm,
		sessionStore: store,
		rateLimiter:  limiter,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink, logger),
		metrics: NewMetrics(cfg.Metrics),
	}

	engine.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Signer:     jm,
			Sessions:   store,
			RefreshTTL: cfg.JWT.RefreshTTL,
		},
		Refresh: flows.RefreshDeps{
			Signer:                  jm,
			Sessions:                store,
			Blacklist:               store,
			Now:                     now,
			GraceWindow:             cfg.Refresh.Window,
			RefreshTTL:              cfg.JWT.RefreshTTL,
			VerifyFallbackSignature: cfg.Refresh.VerifyFallbackSignature,
		},
		Logout: flows.LogoutDeps{
			Signer:    jm,
			Sessions:  store,
			Blacklist: store,
			AccessTTL: cfg.JWT.AccessTTL,
		},
		Bot: flows.BotDeps{
			Signer:       jm,
			Guard:        guard,
			BotAccessTTL: cfg.JWT.BotAccessTTL,
		},
		Validate: flows.ValidateDeps{
			Signer:    jm,
			Sessions:  store,
			Blacklist: store,
		},
		Rate: flows.RateDeps{
			Limiter:  limiter,
			Policy:   rate.Policy{Default: cfg.RateLimit.Default, Routes: cfg.RateLimit.Routes},
			FailOpen: cfg.RateLimit.FailOpen,
		},
		ConfirmEmail: flows.ConfirmEmailDeps{
			Signer:   jm,
			Codes:    codes,
			Notifier: notifier,
			TTL:      cfg.Verify.ConfirmEmailTTL,
			LinkBase: cfg.Verify.ConfirmLinkBase,
		},
		ResetCode: flows.ResetCodeDeps{
			Codes:       codes,
			Notifier:    notifier,
			Now:         now,
			TTL:         cfg.Verify.ResetCodeTTL,
			Digits:      cfg.Verify.ResetCodeDigits,
			MaxAttempts: cfg.Verify.ResetMaxAttempts,
		},
	})

	b.built = true

	return engine, nil
}
