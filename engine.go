package warden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/warden/internal/audit"
	"github.com/MrEthical07/warden/internal/flows"
	"github.com/MrEthical07/warden/internal/rate"
	"github.com/MrEthical07/warden/jwt"
	"github.com/MrEthical07/warden/session"
	"github.com/MrEthical07/warden/snowflake"
)

var errBotRefresh = fmt.Errorf("%w: bot tokens cannot be refreshed", ErrForbidden)

// Engine is the token lifecycle and throttling core. Build it with [Builder].
//
// Engine is safe for concurrent use.
type Engine struct {
	config       Config
	logger       *slog.Logger
	now          func() time.Time
	ids          *snowflake.Generator
	jwtManager   *jwt.Manager
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	flows        flows.Service
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
}

// Close flushes pending audit events. The Redis client is owned by the caller
// and is not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// NextID returns a fresh snowflake id from the engine's generator.
func (e *Engine) NextID() (snowflake.ID, error) {
	if e == nil || e.ids == nil {
		return 0, ErrEngineNotReady
	}
	return e.ids.Generate()
}

// DeconstructID splits id using the configured epoch.
func (e *Engine) DeconstructID(id snowflake.ID) snowflake.Parts {
	return e.ids.Deconstruct(id)
}

// IssueForLogin mints a token pair for a subject that the caller has already
// authenticated and records the refresh session.
func (e *Engine) IssueForLogin(ctx context.Context, subject Subject) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, jwt.Subject{
		ID:     subject.ID,
		Email:  subject.Email,
		Roles:  jwt.Roles(subject.Roles),
		Client: jwt.ClientUser,
	})
	if res.Err != nil {
		err := res.Err
		if errors.Is(err, flows.ErrInvalidSubject) {
			err = ErrInvalidSubject
		}
		e.metricInc(MetricLoginFailure)
		e.noteStoreFailure(ctx, "issue_for_login", err)
		e.emitAudit(ctx, auditEventLoginFailure, false, subject.ID, string(ClientUser), "", err, func() map[string]string {
			return map[string]string{"signed": strconv.FormatBool(res.Issued)}
		})
		return nil, err
	}

	e.metricInc(MetricLoginIssued)
	e.emitAudit(ctx, auditEventLoginIssued, true, subject.ID, string(ClientUser), res.Pair.RefreshClaims.ID, nil, nil)
	return toTokenPair(res.Pair), nil
}

// Refresh exchanges an expired access token and its refresh token for a new
// pair. See the package documentation for the decision rules.
func (e *Engine) Refresh(ctx context.Context, refreshToken, accessToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	defer e.observe(MetricRefreshLatency, time.Now())

	res := e.flows.Refresh(ctx, refreshToken, accessToken)
	if res.Failure != flows.RefreshFailureNone {
		err := refreshError(res)
		e.recordRefreshFailure(ctx, res, err)
		return nil, err
	}

	switch res.Outcome {
	case flows.RefreshRotated:
		e.metricInc(MetricRefreshRotated)
	case flows.RefreshGraceReissued:
		e.metricInc(MetricRefreshGraceReissued)
		e.logger.InfoContext(ctx, "refresh reissued from access claims",
			slog.String("subject", res.Subject),
			slog.String("access_jti", res.AccessJTI),
			slog.Duration("expired_for", res.ExpiredFor),
		)
	}
	e.emitAudit(ctx, refreshAuditEvent(res.Outcome), true, res.Subject, string(res.Client), res.Pair.RefreshClaims.ID, nil, func() map[string]string {
		return map[string]string{
			"previous_token_id": res.OldTokenID,
			"access_jti":        res.AccessJTI,
			"expired_for":       res.ExpiredFor.String(),
		}
	})

	return toTokenPair(res.Pair), nil
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureAccessTokenRequired:
		return ErrAccessTokenRequired
	case flows.RefreshFailureTooEarly:
		return ErrRefreshTooEarly
	case flows.RefreshFailureWindowExceeded:
		return ErrRefreshWindowExceeded
	case flows.RefreshFailureBotClient:
		return errBotRefresh
	case flows.RefreshFailureSessionNotFound:
		return ErrSessionNotFound
	case flows.RefreshFailureAccessRevoked:
		return ErrAccessRevoked
	case flows.RefreshFailureAccessUndecodable,
		flows.RefreshFailureRefreshInvalid,
		flows.RefreshFailurePairMismatch,
		flows.RefreshFailureFallbackSignature:
		return ErrTokenInvalid
	default:
		if res.Err != nil {
			return res.Err
		}
		return ErrUnauthorized
	}
}

func (e *Engine) recordRefreshFailure(ctx context.Context, res flows.RefreshResult, err error) {
	e.metricInc(MetricRefreshFailure)
	switch res.Failure {
	case flows.RefreshFailureTooEarly:
		e.metricInc(MetricRefreshTooEarly)
	case flows.RefreshFailureWindowExceeded:
		e.metricInc(MetricRefreshWindowExceeded)
	case flows.RefreshFailureSessionNotFound:
		e.metricInc(MetricRefreshSessionNotFound)
	case flows.RefreshFailureAccessRevoked:
		e.metricInc(MetricRefreshRevokedAccess)
	case flows.RefreshFailureConfiguration, flows.RefreshFailureIssue:
		e.logger.ErrorContext(ctx, "refresh could not issue tokens", slog.Any("error", res.Err))
	}
	e.noteStoreFailure(ctx, "refresh", res.Err)

	e.emitAudit(ctx, auditEventRefreshFailure, false, res.Subject, string(res.Client), res.OldTokenID, err, func() map[string]string {
		return map[string]string{
			"reason":     refreshFailureReason(res.Failure),
			"access_jti": res.AccessJTI,
		}
	})
}

// Logout deletes the refresh session and blacklists accessTokenID for one
// access token lifetime. When accessTokenID is empty the access token paired
// with the refresh token is revoked. An invalid refresh token is not an
// error; store failures are.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessTokenID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, refreshToken, accessTokenID)
	if res.Err != nil {
		e.metricInc(MetricLogoutFailure)
		e.noteStoreFailure(ctx, "logout", res.Err)
		e.logger.WarnContext(ctx, "logout store failure",
			slog.String("subject", res.Subject),
			slog.Any("error", res.Err),
		)
		e.emitAudit(ctx, auditEventLogoutFailure, false, res.Subject, "", "", res.Err, nil)
		return res.Err
	}
	if res.RefreshInvalid {
		e.logger.DebugContext(ctx, "logout with unverifiable refresh token")
	}

	e.metricInc(MetricLogout)
	if res.RevokedAccess != "" {
		e.metricInc(MetricAccessRevoked)
	}
	e.emitAudit(ctx, auditEventLogout, true, res.Subject, "", res.RevokedAccess, nil, func() map[string]string {
		return map[string]string{
			"session_deleted": strconv.FormatBool(res.SessionDeleted),
			"refresh_invalid": strconv.FormatBool(res.RefreshInvalid),
		}
	})
	return nil
}

// IssueBotToken issues an access-only token for botID and invalidates every
// previous session of that bot atomically.
func (e *Engine) IssueBotToken(ctx context.Context, botID string, roles []string) (*BotToken, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.IssueBotToken(ctx, botID, roles)
	if res.Err != nil {
		err := res.Err
		if errors.Is(err, flows.ErrInvalidSubject) {
			err = ErrInvalidSubject
		}
		e.noteStoreFailure(ctx, "issue_bot_token", err)
		e.emitAudit(ctx, auditEventBotTokenFailure, false, botID, string(ClientBot), "", err, nil)
		return nil, err
	}

	e.metricInc(MetricBotTokenIssued)
	if res.Replaced > 0 {
		e.metrics.Add(MetricBotSessionsReplaced, uint64(res.Replaced))
	}
	e.emitAudit(ctx, auditEventBotTokenIssued, true, botID, string(ClientBot), res.TokenID, nil, func() map[string]string {
		return map[string]string{"replaced": strconv.Itoa(res.Replaced)}
	})

	return &BotToken{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
		TokenID:     res.TokenID,
	}, nil
}

// ValidateAccess verifies signature, expiry and type, then checks the access
// blacklist. Bot tokens also require their session to still exist.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AccessClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	defer e.observe(MetricValidateLatency, time.Now())

	res := e.flows.ValidateAccess(ctx, token)
	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricValidateSuccess)
		return res.Claims, nil
	case flows.ValidateFailureRevoked:
		e.metricInc(MetricValidateFailure)
		return nil, ErrAccessRevoked
	case flows.ValidateFailureSessionNotFound:
		e.metricInc(MetricValidateFailure)
		return nil, ErrSessionNotFound
	case flows.ValidateFailureStore:
		e.metricInc(MetricValidateFailure)
		e.noteStoreFailure(ctx, "validate_access", res.Err)
		return nil, res.Err
	default:
		e.metricInc(MetricValidateFailure)
		if errors.Is(res.Err, ErrConfiguration) {
			return nil, res.Err
		}
		return nil, ErrTokenInvalid
	}
}

// CheckRate counts one request against the rule for route. A blocked caller
// gets a *RateLimitedError (errors.Is ErrRateLimited) alongside the decision.
// When the store is unreachable the request is refused with
// ErrStoreUnavailable unless RateLimit.FailOpen is set.
func (e *Engine) CheckRate(ctx context.Context, id Identity, route string) (RateDecision, error) {
	if !e.ready() {
		return RateDecision{}, ErrEngineNotReady
	}
	if !e.config.RateLimit.Enabled {
		return RateDecision{Allowed: true}, nil
	}
	defer e.observe(MetricRateCheckLatency, time.Now())

	if id.IP == "" {
		id.IP = ClientIPFromContext(ctx)
	}

	res := e.flows.CheckRate(ctx, id, route)
	if res.Err != nil {
		e.noteStoreFailure(ctx, "check_rate", res.Err)
		if !res.FailedOpen {
			return RateDecision{Limit: res.Rule.Limit}, res.Err
		}
		e.metricInc(MetricRateLimitFailOpen)
		e.logger.WarnContext(ctx, "rate limit failed open",
			slog.String("route", route),
			slog.Any("error", res.Err),
		)
		e.emitAudit(ctx, auditEventRateLimitFailOpen, true, id.UserID, "", "", res.Err, func() map[string]string {
			return map[string]string{"route": route}
		})
		return RateDecision{Allowed: true, Limit: res.Rule.Limit, FailedOpen: true}, nil
	}

	d := res.Decision
	out := RateDecision{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining(),
		RetryAfter: d.RetryAfter,
		ResetAt:    d.WindowExpiry,
	}
	if d.Allowed {
		e.metricInc(MetricRateLimitAllowed)
		return out, nil
	}

	out.ResetAt = d.BlockExpiry
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, id.UserID, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"route":       route,
			"key":         d.Key,
			"count":       strconv.FormatInt(d.Count, 10),
			"retry_after": strconv.FormatInt(int64(d.RetryAfter/time.Second), 10),
		}
	})
	return out, &RateLimitedError{RetryAfter: d.RetryAfter, Key: d.Key}
}

// Health reports Redis reachability and round-trip latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}
	latency, err := e.sessionStore.Ping(ctx)
	if err != nil {
		e.noteStoreFailure(ctx, "health", err)
		return HealthStatus{RedisLatency: latency, Error: err.Error()}
	}
	return HealthStatus{RedisAvailable: true, RedisLatency: latency}
}

func (e *Engine) noteStoreFailure(ctx context.Context, op string, err error) {
	if err == nil || !errors.Is(err, ErrStoreUnavailable) {
		return
	}
	e.metricInc(MetricStoreUnavailable)
	e.logger.WarnContext(ctx, "store unavailable", slog.String("op", op), slog.Any("error", err))
}

func toTokenPair(p *jwt.IssuedPair) *TokenPair {
	return &TokenPair{
		AccessToken:   p.AccessToken,
		RefreshToken:  p.RefreshToken,
		TokenType:     p.TokenType,
		ExpiresIn:     p.ExpiresIn,
		AccessTokenID: p.AccessClaims.ID,
	}
}
