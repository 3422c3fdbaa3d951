package warden

import (
	"context"
	"errors"

	"github.com/MrEthical07/warden/internal/flows"
)

const (
	auditEventLoginIssued        = "login_issued"
	auditEventLoginFailure       = "login_failure"
	auditEventRefreshRotated     = "refresh_rotated"
	auditEventRefreshReissued    = "refresh_grace_reissued"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventLogout             = "logout"
	auditEventLogoutFailure      = "logout_failure"
	auditEventBotTokenIssued     = "bot_token_issued"
	auditEventBotTokenFailure    = "bot_token_failure"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventRateLimitFailOpen  = "rate_limit_fail_open"

	auditEventEmailConfirmationIssued = "email_confirmation_issued"
	auditEventEmailConfirmed          = "email_confirmed"
	auditEventEmailConfirmFailure     = "email_confirm_failure"
	auditEventResetCodeIssued         = "reset_code_issued"
	auditEventResetCodeVerified       = "reset_code_verified"
	auditEventResetCodeFailure        = "reset_code_failure"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized    AuditErrorCode = "unauthorized"
	auditErrForbidden       AuditErrorCode = "forbidden"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrSessionNotFound AuditErrorCode = "session_not_found"
	auditErrBadRequest      AuditErrorCode = "bad_request"
	auditErrConfiguration   AuditErrorCode = "configuration"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	client string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		Client:    client,
		TokenID:   tokenID,
		IP:        ClientIPFromContext(ctx),
		Route:     routeFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func refreshAuditEvent(o flows.RefreshOutcome) string {
	if o == flows.RefreshGraceReissued {
		return auditEventRefreshReissued
	}
	return auditEventRefreshRotated
}

func refreshFailureReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureAccessTokenRequired:
		return "access_token_required"
	case flows.RefreshFailureAccessUndecodable:
		return "access_undecodable"
	case flows.RefreshFailureTooEarly:
		return "too_early"
	case flows.RefreshFailureWindowExceeded:
		return "window_exceeded"
	case flows.RefreshFailureRefreshInvalid:
		return "refresh_invalid"
	case flows.RefreshFailurePairMismatch:
		return "pair_mismatch"
	case flows.RefreshFailureBotClient:
		return "bot_client"
	case flows.RefreshFailureSessionNotFound:
		return "session_not_found"
	case flows.RefreshFailureAccessRevoked:
		return "access_revoked"
	case flows.RefreshFailureFallbackSignature:
		return "fallback_signature"
	case flows.RefreshFailureConfiguration:
		return "configuration"
	case flows.RefreshFailureIssue:
		return "issue_failed"
	case flows.RefreshFailureStore:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrNotifyFailed):
		return auditErrUnavailable
	case errors.Is(err, ErrConfiguration):
		return auditErrConfiguration
	case errors.Is(err, ErrAccessTokenRequired), errors.Is(err, ErrInvalidSubject), errors.Is(err, ErrInvalidEmail):
		return auditErrBadRequest
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}

func verificationFailureReason(kind flows.VerificationFailureKind) string {
	switch kind {
	case flows.VerificationFailureInvalidInput:
		return "invalid_input"
	case flows.VerificationFailureTokenInvalid:
		return "token_invalid"
	case flows.VerificationFailureAlreadyUsed:
		return "already_used"
	case flows.VerificationFailureCodeNotFound:
		return "code_not_found"
	case flows.VerificationFailureCodeMismatch:
		return "code_mismatch"
	case flows.VerificationFailureAttemptsExceeded:
		return "attempts_exceeded"
	case flows.VerificationFailureStore:
		return "store_unavailable"
	case flows.VerificationFailureIssue:
		return "issue_failed"
	case flows.VerificationFailureNotify:
		return "notify_failed"
	default:
		return "unknown"
	}
}
