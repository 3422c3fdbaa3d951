package warden

import (
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/warden/internal/audit"
	"github.com/MrEthical07/warden/internal/flows"
	internalmetrics "github.com/MrEthical07/warden/internal/metrics"
	"github.com/MrEthical07/warden/internal/rate"
	"github.com/MrEthical07/warden/jwt"
)

// ClientKind distinguishes human sessions from bot sessions.
type ClientKind = jwt.ClientKind

const (
	ClientUser = jwt.ClientUser
	ClientBot  = jwt.ClientBot
)

// AccessClaims is the verified payload of an access token.
type AccessClaims = jwt.AccessClaims

// Subject is an already authenticated principal handed to IssueForLogin.
// Credential checking happens outside this package.
type Subject struct {
	ID    string
	Email string
	Roles []string
}

// TokenPair is returned by IssueForLogin and Refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
	// AccessTokenID is the access jti, useful for a later Logout.
	AccessTokenID string `json:"-"`
}

// BotToken is the access-only credential issued to a bot.
type BotToken struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
	TokenID     string `json:"-"`
}

// Identity is who a rate check counts against.
type Identity = rate.Identity

// KeyBy selects the rate limit bucket strategy.
type KeyBy = rate.KeyBy

const (
	KeyByUser   = rate.KeyByUser
	KeyByIP     = rate.KeyByIP
	KeyByIPUser = rate.KeyByIPUser
)

// RateRule is the budget applied to a route.
type RateRule = rate.Rule

// RateDecision is the outcome of CheckRate.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	// FailedOpen reports that the store was unreachable and the request was
	// admitted by policy.
	FailedOpen bool
}

// AuditEvent is an audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// AuditEnvelope is the Redis event bus message shape.
type AuditEnvelope = internalaudit.Envelope

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type SlogSink = internalaudit.SlogSink

type RedisPublishSink = internalaudit.RedisPublishSink

// Notifier delivers email requests and confirmation events.
// *RedisPublishSink satisfies it.
type Notifier = flows.Notifier

// EventMessage is one event handed to a Notifier.
type EventMessage = internalaudit.Message

// EmailRequest is the payload of a notification.send.email event.
type EmailRequest = flows.EmailRequest

// EmailConfirmedEvent is the payload of a user.email.confirmed event.
type EmailConfirmedEvent = flows.EmailConfirmed

const (
	EventSendEmail      = flows.EventSendEmail
	EventEmailConfirmed = flows.EventEmailConfirmed
)

// EmailConfirmation is returned by IssueEmailConfirmation.
type EmailConfirmation struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// ConfirmedEmail is returned by ConfirmEmail.
type ConfirmedEmail struct {
	SubjectID string
	Email     string
}

// ResetCode is returned by IssueResetCode. Code is what was mailed; callers
// that deliver it themselves can use it directly.
type ResetCode struct {
	Code      string
	ExpiresIn time.Duration
}

// AuditChannel is the default Pub/Sub channel for RedisPublishSink.
const AuditChannel = internalaudit.DefaultChannel

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// NewRedisPublishSink publishes audit envelopes on channel (AuditChannel when
// empty) with a ULID per event.
func NewRedisPublishSink(client internalaudit.Publisher, channel string, logger *slog.Logger) *RedisPublishSink {
	return internalaudit.NewRedisPublishSink(client, channel, logger)
}

// MetricID names an engine metric.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginIssued             = internalmetrics.MetricLoginIssued
	MetricLoginFailure            = internalmetrics.MetricLoginFailure
	MetricRefreshRotated          = internalmetrics.MetricRefreshRotated
	MetricRefreshGraceReissued    = internalmetrics.MetricRefreshGraceReissued
	MetricRefreshFailure          = internalmetrics.MetricRefreshFailure
	MetricRefreshTooEarly         = internalmetrics.MetricRefreshTooEarly
	MetricRefreshWindowExceeded   = internalmetrics.MetricRefreshWindowExceeded
	MetricRefreshSessionNotFound  = internalmetrics.MetricRefreshSessionNotFound
	MetricRefreshRevokedAccess    = internalmetrics.MetricRefreshRevokedAccess
	MetricLogout                  = internalmetrics.MetricLogout
	MetricLogoutFailure           = internalmetrics.MetricLogoutFailure
	MetricAccessRevoked           = internalmetrics.MetricAccessRevoked
	MetricBotTokenIssued          = internalmetrics.MetricBotTokenIssued
	MetricBotSessionsReplaced     = internalmetrics.MetricBotSessionsReplaced
	MetricValidateSuccess         = internalmetrics.MetricValidateSuccess
	MetricValidateFailure         = internalmetrics.MetricValidateFailure
	MetricRateLimitAllowed        = internalmetrics.MetricRateLimitAllowed
	MetricRateLimitHit            = internalmetrics.MetricRateLimitHit
	MetricRateLimitFailOpen       = internalmetrics.MetricRateLimitFailOpen
	MetricStoreUnavailable        = internalmetrics.MetricStoreUnavailable
	MetricEmailConfirmationIssued = internalmetrics.MetricEmailConfirmationIssued
	MetricEmailConfirmed          = internalmetrics.MetricEmailConfirmed
	MetricEmailConfirmFailure     = internalmetrics.MetricEmailConfirmFailure
	MetricResetCodeIssued         = internalmetrics.MetricResetCodeIssued
	MetricResetCodeVerified       = internalmetrics.MetricResetCodeVerified
	MetricResetCodeFailure        = internalmetrics.MetricResetCodeFailure
	MetricNotifyFailure           = internalmetrics.MetricNotifyFailure
	MetricValidateLatency         = internalmetrics.MetricValidateLatency
	MetricRefreshLatency          = internalmetrics.MetricRefreshLatency
	MetricRateCheckLatency        = internalmetrics.MetricRateCheckLatency
)

// Metrics is the engine's in-process metric registry.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics builds a registry from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}

// HealthStatus is returned by Engine.Health.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
	Error          string
}
