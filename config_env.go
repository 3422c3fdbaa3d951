package warden

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/warden/internal/rate"
)

// envConfig is the flat environment surface. Durations given as plain
// integers are seconds.
type envConfig struct {
	JWTPrivateKey    string        `env:"JWT_PRIVATE_KEY"`
	JWTPublicKey     string        `env:"JWT_PUBLIC_KEY"`
	JWTSigningMethod string        `env:"JWT_SIGNING_METHOD" envDefault:"rs256"`
	JWTIssuer        string        `env:"JWT_ISSUER"`
	JWTAudience      string        `env:"JWT_AUDIENCE"`
	JWTLeeway        time.Duration `env:"JWT_LEEWAY" envDefault:"0s"`
	JWTKeyID         string        `env:"JWT_KEY_ID"`

	AccessTTL    int64 `env:"ACCESS_TOKEN_TTL" envDefault:"900"`
	RefreshTTL   int64 `env:"REFRESH_TOKEN_TTL" envDefault:"2592000"`
	BotAccessTTL int64 `env:"BOT_ACCESS_TOKEN_TTL" envDefault:"86400"`

	RefreshWindow           int64 `env:"REFRESH_WINDOW_SECONDS" envDefault:"300"`
	VerifyFallbackSignature bool  `env:"REFRESH_VERIFY_FALLBACK_SIGNATURE" envDefault:"false"`

	WorkerID  int64  `env:"SNOWFLAKE_WORKER_ID" envDefault:"0"`
	Epoch     int64  `env:"SNOWFLAKE_EPOCH" envDefault:"1736572800000"`
	JTIFormat string `env:"JTI_FORMAT" envDefault:"snowflake"`

	SessionPrefix    string        `env:"SESSION_PREFIX" envDefault:"SESSION"`
	OperationTimeout time.Duration `env:"REDIS_OPERATION_TIMEOUT" envDefault:"2s"`

	RateLimitEnabled  bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitLimit    int    `env:"RATE_LIMIT_DEFAULT_LIMIT" envDefault:"5"`
	RateLimitTTL      int64  `env:"RATE_LIMIT_DEFAULT_TTL" envDefault:"60"`
	RateLimitKeyBy    string `env:"RATE_LIMIT_KEY_BY" envDefault:"ip"`
	RateLimitFailOpen bool   `env:"RATE_LIMIT_FAIL_OPEN" envDefault:"false"`

	ConfirmEmailTTL  int64  `env:"CONFIRM_EMAIL_TTL" envDefault:"86400"`
	ConfirmLinkBase  string `env:"CONFIRM_EMAIL_LINK_BASE"`
	ResetCodeTTL     int64  `env:"RESET_CODE_TTL" envDefault:"900"`
	ResetCodeDigits  int    `env:"RESET_CODE_DIGITS" envDefault:"6"`
	ResetMaxAttempts int    `env:"RESET_CODE_MAX_ATTEMPTS" envDefault:"5"`
	EventChannel     string `env:"EVENT_CHANNEL" envDefault:"warden.events"`

	AuditEnabled    bool `env:"AUDIT_ENABLED" envDefault:"false"`
	AuditBufferSize int  `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsLatency bool `env:"METRICS_LATENCY_HISTOGRAMS" envDefault:"false"`
}

// LoadConfigFromEnv reads the process environment on top of the defaults.
// The result is not validated; Build does that.
func LoadConfigFromEnv() (Config, error) {
	ec, err := env.ParseAs[envConfig]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return ec.toConfig()
}

// LoadConfigFromMap is LoadConfigFromEnv over an explicit variable set.
func LoadConfigFromMap(vars map[string]string) (Config, error) {
	ec, err := env.ParseAsWithOptions[envConfig](env.Options{Environment: vars})
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return ec.toConfig()
}

func (ec envConfig) toConfig() (Config, error) {
	keyBy, err := rate.ParseKeyBy(ec.RateLimitKeyBy)
	if err != nil {
		return Config{}, fmt.Errorf("%w: RATE_LIMIT_KEY_BY: %v", ErrConfiguration, err)
	}

	cfg := defaultConfig()

	cfg.JWT.PrivateKey = NormalizePEM(ec.JWTPrivateKey)
	cfg.JWT.PublicKey = NormalizePEM(ec.JWTPublicKey)
	cfg.JWT.SigningMethod = strings.ToLower(strings.TrimSpace(ec.JWTSigningMethod))
	cfg.JWT.Issuer = ec.JWTIssuer
	cfg.JWT.Audience = ec.JWTAudience
	cfg.JWT.Leeway = ec.JWTLeeway
	cfg.JWT.KeyID = ec.JWTKeyID
	cfg.JWT.AccessTTL = seconds(ec.AccessTTL)
	cfg.JWT.RefreshTTL = seconds(ec.RefreshTTL)
	cfg.JWT.BotAccessTTL = seconds(ec.BotAccessTTL)

	cfg.Refresh.Window = seconds(ec.RefreshWindow)
	cfg.Refresh.VerifyFallbackSignature = ec.VerifyFallbackSignature

	cfg.IDs.WorkerID = ec.WorkerID
	cfg.IDs.Epoch = ec.Epoch
	cfg.IDs.JTIFormat = strings.ToLower(strings.TrimSpace(ec.JTIFormat))

	cfg.Store.SessionPrefix = ec.SessionPrefix
	cfg.Store.OperationTimeout = ec.OperationTimeout

	cfg.RateLimit.Enabled = ec.RateLimitEnabled
	cfg.RateLimit.Default = RateRule{
		Limit:  ec.RateLimitLimit,
		Window: seconds(ec.RateLimitTTL),
		KeyBy:  keyBy,
	}
	cfg.RateLimit.FailOpen = ec.RateLimitFailOpen

	cfg.Verify.ConfirmEmailTTL = seconds(ec.ConfirmEmailTTL)
	cfg.Verify.ConfirmLinkBase = strings.TrimSpace(ec.ConfirmLinkBase)
	cfg.Verify.ResetCodeTTL = seconds(ec.ResetCodeTTL)
	cfg.Verify.ResetCodeDigits = ec.ResetCodeDigits
	cfg.Verify.ResetMaxAttempts = ec.ResetMaxAttempts
	cfg.Verify.Channel = ec.EventChannel

	cfg.Audit.Enabled = ec.AuditEnabled
	cfg.Audit.BufferSize = ec.AuditBufferSize

	cfg.Metrics.Enabled = ec.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = ec.MetricsLatency

	return cfg, nil
}

// NormalizePEM accepts keys pasted into a single env line: surrounding
// quotes are dropped and literal \n sequences become newlines.
func NormalizePEM(raw string) []byte {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, `\r\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	return []byte(s)
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
