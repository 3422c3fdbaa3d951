package warden

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/warden/internal/audit"
	"github.com/MrEthical07/warden/internal/rate"
	"github.com/MrEthical07/warden/snowflake"
)

// Config is the full engine configuration. Build it with [DefaultConfig] or
// [LoadConfigFromEnv] and hand it to [Builder.WithConfig]; it is validated
// once at Build and treated as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Refresh   RefreshConfig
	IDs       IDConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
	Verify    VerificationConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	BotAccessTTL time.Duration
	// SigningMethod is "rs256" (default) or "ed25519". Symmetric methods are
	// rejected.
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the refresh state machine.
type RefreshConfig struct {
	// Window is how long after access expiry a refresh is still accepted.
	// An access token that expired exactly Window ago is accepted.
	Window time.Duration
	// VerifyFallbackSignature requires a valid access token signature when the
	// refresh token itself is invalid and the pair is rebuilt from the access
	// claims.
	VerifyFallbackSignature bool
}

// IDConfig controls token id generation.
type IDConfig struct {
	WorkerID int64
	// Epoch is the snowflake epoch in unix milliseconds.
	Epoch int64
	// JTIFormat is "snowflake" (default) or "uuid".
	JTIFormat string
}

// StoreConfig controls Redis key layout and timeouts.
type StoreConfig struct {
	SessionPrefix    string
	OperationTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls CheckRate.
type RateLimitConfig struct {
	Enabled bool
	Default RateRule
	// Routes overrides Default for exact route paths.
	Routes map[string]RateRule
	// FailOpen admits requests when Redis is unavailable. The default fails
	// closed.
	FailOpen bool
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls email confirmation tokens and password reset
// codes.
type VerificationConfig struct {
	ConfirmEmailTTL time.Duration
	// ConfirmLinkBase is prefixed to the confirmation token to build the link
	// sent by email, e.g. "https://app.example.com/auth/confirm/".
	ConfirmLinkBase  string
	ResetCodeTTL     time.Duration
	ResetCodeDigits  int
	ResetMaxAttempts int
	CodePrefix       string
	// Channel is the Pub/Sub channel notification events are published on
	// when no Notifier is configured.
	Channel string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	JTIFormatSnowflake = "snowflake"
	JTIFormatUUID      = "uuid"
)

// DefaultConfig returns the production defaults without keys.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     900 * time.Second,
			RefreshTTL:    2592000 * time.Second,
			BotAccessTTL:  86400 * time.Second,
			SigningMethod: "rs256",
		},
		Refresh: RefreshConfig{
			Window: 300 * time.Second,
		},
		IDs: IDConfig{
			WorkerID:  0,
			Epoch:     snowflake.DefaultEpoch,
			JTIFormat: JTIFormatSnowflake,
		},
		Store: StoreConfig{
			SessionPrefix:    "SESSION",
			OperationTimeout: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Default: RateRule{Limit: 5, Window: 60 * time.Second, KeyBy: rate.KeyByIP},
		},
		Verify: VerificationConfig{
			ConfirmEmailTTL:  24 * time.Hour,
			ResetCodeTTL:     15 * time.Minute,
			ResetCodeDigits:  6,
			ResetMaxAttempts: 5,
			CodePrefix:       "reset",
			Channel:          internalaudit.DefaultChannel,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.RateLimit.Routes = maps.Clone(cfg.RateLimit.Routes)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every section and returns the first problem found wrapped
// in ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.BotAccessTTL <= 0 {
		return errors.New("JWT BotAccessTTL must be > 0")
	}
	if c.JWT.AccessTTL%time.Second != 0 || c.JWT.BotAccessTTL%time.Second != 0 {
		return errors.New("JWT token lifetimes must be whole seconds")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "rs256", "ed25519":
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if len(c.JWT.PrivateKey) == 0 && len(c.JWT.PublicKey) == 0 {
		return errors.New("JWT requires at least one of PrivateKey or PublicKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.Window < 0 {
		return errors.New("Refresh Window must be >= 0")
	}
	if c.Refresh.Window >= c.JWT.RefreshTTL {
		return errors.New("Refresh Window must be shorter than RefreshTTL")
	}

	// IDs
	if c.IDs.WorkerID < 0 || c.IDs.WorkerID > snowflake.MaxWorkerID {
		return fmt.Errorf("IDs WorkerID must be between 0 and %d", snowflake.MaxWorkerID)
	}
	if c.IDs.Epoch <= 0 {
		return errors.New("IDs Epoch must be > 0")
	}
	switch c.IDs.JTIFormat {
	case JTIFormatSnowflake, JTIFormatUUID:
	default:
		return fmt.Errorf("IDs JTIFormat must be %q or %q", JTIFormatSnowflake, JTIFormatUUID)
	}

	// Store
	if strings.TrimSpace(c.Store.SessionPrefix) == "" {
		return errors.New("Store SessionPrefix must not be empty")
	}
	if strings.ContainsAny(c.Store.SessionPrefix, ":*?[]") {
		return errors.New("Store SessionPrefix must not contain ':' or glob characters")
	}
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		policy := rate.Policy{Default: c.RateLimit.Default, Routes: c.RateLimit.Routes}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("RateLimit: %v", err)
		}
	}

	// Verify
	if c.Verify.ConfirmEmailTTL <= 0 {
		return errors.New("Verify ConfirmEmailTTL must be > 0")
	}
	if c.Verify.ResetCodeTTL <= 0 {
		return errors.New("Verify ResetCodeTTL must be > 0")
	}
	if c.Verify.ResetCodeDigits < 4 || c.Verify.ResetCodeDigits > 10 {
		return errors.New("Verify ResetCodeDigits must be between 4 and 10")
	}
	if c.Verify.ResetMaxAttempts <= 0 {
		return errors.New("Verify ResetMaxAttempts must be > 0")
	}
	if strings.TrimSpace(c.Verify.CodePrefix) == "" || strings.ContainsAny(c.Verify.CodePrefix, ":*?[]") {
		return errors.New("Verify CodePrefix must be non-empty without ':' or glob characters")
	}
	if c.Verify.CodePrefix == c.Store.SessionPrefix {
		return errors.New("Verify CodePrefix must differ from Store SessionPrefix")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
