package warden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/warden/internal/flows"
)

// IssueEmailConfirmation signs a single-use confirmation token for subjectID
// and email and publishes a notification.send.email event carrying it. When
// publishing fails the confirmation is still returned, together with an
// error wrapping ErrNotifyFailed.
func (e *Engine) IssueEmailConfirmation(ctx context.Context, subjectID, email string) (*EmailConfirmation, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.IssueEmailConfirmation(ctx, subjectID, email)
	switch res.Failure {
	case flows.VerificationFailureNone:
	case flows.VerificationFailureNotify:
		err := e.notifyFailed(ctx, "issue_email_confirmation", res.Err)
		e.metricInc(MetricEmailConfirmationIssued)
		e.emitAudit(ctx, auditEventEmailConfirmationIssued, false, res.Subject, "", res.TokenID, err, nil)
		return confirmationFrom(res), err
	default:
		err := verificationError(res.Failure, res.Err)
		e.noteStoreFailure(ctx, "issue_email_confirmation", err)
		e.emitAudit(ctx, auditEventEmailConfirmationIssued, false, res.Subject, "", "", err, func() map[string]string {
			return map[string]string{"reason": verificationFailureReason(res.Failure)}
		})
		return nil, err
	}

	e.metricInc(MetricEmailConfirmationIssued)
	e.emitAudit(ctx, auditEventEmailConfirmationIssued, true, res.Subject, "", res.TokenID, nil, nil)
	return confirmationFrom(res), nil
}

// ConfirmEmail redeems a confirmation token and publishes a
// user.email.confirmed event. A token is accepted once; a replay returns
// ErrTokenAlreadyUsed. When publishing fails the confirmation has still been
// recorded and is returned with an error wrapping ErrNotifyFailed.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) (*ConfirmedEmail, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.ConfirmEmail(ctx, token)
	confirmed := &ConfirmedEmail{SubjectID: res.Subject, Email: res.Email}
	switch res.Failure {
	case flows.VerificationFailureNone:
	case flows.VerificationFailureNotify:
		err := e.notifyFailed(ctx, "confirm_email", res.Err)
		e.metricInc(MetricEmailConfirmed)
		e.emitAudit(ctx, auditEventEmailConfirmed, false, res.Subject, "", res.TokenID, err, nil)
		return confirmed, err
	default:
		err := verificationError(res.Failure, res.Err)
		e.metricInc(MetricEmailConfirmFailure)
		e.noteStoreFailure(ctx, "confirm_email", err)
		e.emitAudit(ctx, auditEventEmailConfirmFailure, false, res.Subject, "", res.TokenID, err, func() map[string]string {
			return map[string]string{"reason": verificationFailureReason(res.Failure)}
		})
		return nil, err
	}

	e.metricInc(MetricEmailConfirmed)
	e.emitAudit(ctx, auditEventEmailConfirmed, true, res.Subject, "", res.TokenID, nil, nil)
	return confirmed, nil
}

// IssueResetCode stores a fresh numeric reset code for subjectID, replacing
// any pending one, and publishes a notification.send.email event that mails
// it to email. Only a hash of the code is stored.
func (e *Engine) IssueResetCode(ctx context.Context, subjectID, email string) (*ResetCode, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.IssueResetCode(ctx, subjectID, email)
	switch res.Failure {
	case flows.VerificationFailureNone:
	case flows.VerificationFailureNotify:
		err := e.notifyFailed(ctx, "issue_reset_code", res.Err)
		e.metricInc(MetricResetCodeIssued)
		e.emitAudit(ctx, auditEventResetCodeIssued, false, res.Subject, "", "", err, nil)
		return &ResetCode{Code: res.Code, ExpiresIn: res.ExpiresIn}, err
	default:
		err := verificationError(res.Failure, res.Err)
		e.noteStoreFailure(ctx, "issue_reset_code", err)
		e.emitAudit(ctx, auditEventResetCodeIssued, false, res.Subject, "", "", err, func() map[string]string {
			return map[string]string{"reason": verificationFailureReason(res.Failure)}
		})
		return nil, err
	}

	e.metricInc(MetricResetCodeIssued)
	e.emitAudit(ctx, auditEventResetCodeIssued, true, res.Subject, "", "", nil, nil)
	return &ResetCode{Code: res.Code, ExpiresIn: res.ExpiresIn}, nil
}

// VerifyResetCode consumes subjectID's pending reset code. A correct code
// works once. Wrong codes return ErrCodeInvalid until the configured attempt
// limit, when ErrCodeAttemptsExceeded is returned and the code is discarded.
func (e *Engine) VerifyResetCode(ctx context.Context, subjectID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.VerifyResetCode(ctx, subjectID, code)
	if res.Failure != flows.VerificationFailureNone {
		err := verificationError(res.Failure, res.Err)
		e.metricInc(MetricResetCodeFailure)
		e.noteStoreFailure(ctx, "verify_reset_code", err)
		if res.Failure == flows.VerificationFailureAttemptsExceeded {
			e.logger.WarnContext(ctx, "reset code attempts exhausted", slog.String("subject", res.Subject))
		}
		e.emitAudit(ctx, auditEventResetCodeFailure, false, res.Subject, "", "", err, func() map[string]string {
			return map[string]string{"reason": verificationFailureReason(res.Failure)}
		})
		return err
	}

	e.metricInc(MetricResetCodeVerified)
	e.emitAudit(ctx, auditEventResetCodeVerified, true, res.Subject, "", "", nil, nil)
	return nil
}

func (e *Engine) notifyFailed(ctx context.Context, op string, cause error) error {
	e.metricInc(MetricNotifyFailure)
	e.logger.WarnContext(ctx, "notification publish failed", slog.String("op", op), slog.Any("error", cause))
	return fmt.Errorf("%w: %v", ErrNotifyFailed, cause)
}

func verificationError(kind flows.VerificationFailureKind, cause error) error {
	switch kind {
	case flows.VerificationFailureInvalidInput:
		if errors.Is(cause, flows.ErrInvalidEmail) {
			return ErrInvalidEmail
		}
		return ErrInvalidSubject
	case flows.VerificationFailureTokenInvalid:
		return ErrTokenInvalid
	case flows.VerificationFailureAlreadyUsed:
		return ErrTokenAlreadyUsed
	case flows.VerificationFailureCodeNotFound, flows.VerificationFailureCodeMismatch:
		return ErrCodeInvalid
	case flows.VerificationFailureAttemptsExceeded:
		return ErrCodeAttemptsExceeded
	default:
		if cause != nil {
			return cause
		}
		return ErrUnauthorized
	}
}

func confirmationFrom(res flows.ConfirmationResult) *EmailConfirmation {
	return &EmailConfirmation{
		Token:     res.Token,
		TokenID:   res.TokenID,
		ExpiresAt: res.ExpiresAt,
	}
}
