package flows

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/warden/internal/audit"
	"github.com/MrEthical07/warden/jwt"
	"github.com/MrEthical07/warden/session"
)

const (
	// EventSendEmail asks the notification service to deliver an email.
	EventSendEmail = "notification.send.email"
	// EventEmailConfirmed announces that a subject proved ownership of an email.
	EventEmailConfirmed = "user.email.confirmed"

	EmailTypeConfirm = "CONFIRM_EMAIL"
	EmailTypeReset   = "RESET_PASSWORD"
)

// ErrInvalidEmail is returned for addresses that do not parse as a single
// bare address.
var ErrInvalidEmail = errors.New("invalid email address")

// EmailRequest is the payload of an EventSendEmail message.
type EmailRequest struct {
	Type string            `json:"type"`
	To   string            `json:"to"`
	Data map[string]string `json:"data"`
}

// EmailConfirmed is the payload of an EventEmailConfirmed message.
type EmailConfirmed struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// ConfirmationSigner mints and checks email confirmation tokens.
// *jwt.Manager satisfies it.
type ConfirmationSigner interface {
	Now() time.Time
	SignConfirmation(subjectID, email string, ttl time.Duration) (string, *jwt.AccessClaims, error)
	VerifyConfirmation(token string) (*jwt.AccessClaims, error)
}

// CodeRepository keeps pending reset codes and single-use token markers.
// *session.CodeStore satisfies it.
type CodeRepository interface {
	Save(ctx context.Context, subject string, hash [32]byte, ttl time.Duration) error
	Consume(ctx context.Context, subject string, hash [32]byte, maxAttempts int) error
	Claim(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// Notifier delivers domain events. *audit.RedisPublishSink satisfies it.
type Notifier interface {
	Notify(ctx context.Context, msg audit.Message) error
}

// VerificationFailureKind classifies confirmation and reset failures.
type VerificationFailureKind int

const (
	VerificationFailureNone VerificationFailureKind = iota
	VerificationFailureInvalidInput
	VerificationFailureTokenInvalid
	VerificationFailureAlreadyUsed
	VerificationFailureCodeNotFound
	VerificationFailureCodeMismatch
	VerificationFailureAttemptsExceeded
	VerificationFailureStore
	VerificationFailureIssue
	VerificationFailureNotify
)

/*
====================================
EMAIL CONFIRMATION
====================================
*/

// ConfirmEmailDeps captures email confirmation dependencies.
type ConfirmEmailDeps struct {
	Signer   ConfirmationSigner
	Codes    CodeRepository
	Notifier Notifier
	TTL      time.Duration
	// LinkBase is prefixed to the token to build the link sent to the user.
	// An empty LinkBase sends the token without a link.
	LinkBase string
}

// ConfirmationResult is the outcome of issuing or redeeming a confirmation.
type ConfirmationResult struct {
	Failure   VerificationFailureKind
	Err       error
	Token     string
	TokenID   string
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// RunIssueEmailConfirmation signs a confirmation token for subjectID and
// email and asks the notification service to mail it. A notify failure still
// returns the signed token with Failure set.
func RunIssueEmailConfirmation(ctx context.Context, subjectID, email string, deps ConfirmEmailDeps) ConfirmationResult {
	subjectID = strings.TrimSpace(subjectID)
	if !validSubjectID(subjectID) {
		return ConfirmationResult{Failure: VerificationFailureInvalidInput, Err: ErrInvalidSubject}
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return ConfirmationResult{Failure: VerificationFailureInvalidInput, Err: err, Subject: subjectID}
	}

	token, claims, err := deps.Signer.SignConfirmation(subjectID, email, deps.TTL)
	if err != nil {
		return ConfirmationResult{Failure: VerificationFailureIssue, Err: err, Subject: subjectID}
	}
	res := ConfirmationResult{
		Token:     token,
		TokenID:   claims.ID,
		Subject:   subjectID,
		Email:     email,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	data := map[string]string{"token": token}
	if deps.LinkBase != "" {
		data["confirmUrl"] = deps.LinkBase + token
	}
	err = deps.Notifier.Notify(ctx, audit.Message{
		Event:     EventSendEmail,
		Timestamp: deps.Signer.Now().UTC(),
		Payload:   EmailRequest{Type: EmailTypeConfirm, To: email, Data: data},
	})
	if err != nil {
		res.Failure = VerificationFailureNotify
		res.Err = err
	}
	return res
}

// RunConfirmEmail redeems a confirmation token. Each token is accepted once;
// its id stays claimed until the token would have expired anyway.
func RunConfirmEmail(ctx context.Context, token string, deps ConfirmEmailDeps) ConfirmationResult {
	claims, err := deps.Signer.VerifyConfirmation(token)
	if err != nil {
		if errors.Is(err, jwt.ErrConfiguration) {
			return ConfirmationResult{Failure: VerificationFailureIssue, Err: err}
		}
		return ConfirmationResult{Failure: VerificationFailureTokenInvalid, Err: err}
	}
	res := ConfirmationResult{
		TokenID:   claims.ID,
		Subject:   claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	remaining := claims.ExpiresAt.Sub(deps.Signer.Now())
	if remaining < time.Second {
		remaining = time.Second
	}
	claimed, err := deps.Codes.Claim(ctx, claims.ID, remaining)
	if err != nil {
		res.Failure = VerificationFailureStore
		res.Err = err
		return res
	}
	if !claimed {
		res.Failure = VerificationFailureAlreadyUsed
		return res
	}

	err = deps.Notifier.Notify(ctx, audit.Message{
		Event:     EventEmailConfirmed,
		Timestamp: deps.Signer.Now().UTC(),
		Payload:   EmailConfirmed{UserID: claims.Subject, Email: claims.Email},
	})
	if err != nil {
		res.Failure = VerificationFailureNotify
		res.Err = err
	}
	return res
}

/*
====================================
RESET CODES
====================================
*/

// ResetCodeDeps captures password reset code dependencies.
type ResetCodeDeps struct {
	Codes       CodeRepository
	Notifier    Notifier
	Now         func() time.Time
	TTL         time.Duration
	Digits      int
	MaxAttempts int
	// Random defaults to crypto/rand.Reader.
	Random io.Reader
}

// ResetCodeResult is the outcome of issuing or verifying a reset code.
type ResetCodeResult struct {
	Failure VerificationFailureKind
	Err     error
	Subject string
	// Code is set on issue only.
	Code      string
	ExpiresIn time.Duration
}

// RunIssueResetCode stores a fresh numeric code for subjectID, replacing any
// pending one, and asks the notification service to mail it to email. Only
// the code's hash is stored.
func RunIssueResetCode(ctx context.Context, subjectID, email string, deps ResetCodeDeps) ResetCodeResult {
	subjectID = strings.TrimSpace(subjectID)
	if !validSubjectID(subjectID) {
		return ResetCodeResult{Failure: VerificationFailureInvalidInput, Err: ErrInvalidSubject}
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return ResetCodeResult{Failure: VerificationFailureInvalidInput, Err: err, Subject: subjectID}
	}

	code, err := randomDigits(deps.Random, deps.Digits)
	if err != nil {
		return ResetCodeResult{Failure: VerificationFailureIssue, Err: err, Subject: subjectID}
	}
	if err := deps.Codes.Save(ctx, subjectID, hashCode(subjectID, code), deps.TTL); err != nil {
		return ResetCodeResult{Failure: VerificationFailureStore, Err: err, Subject: subjectID}
	}

	res := ResetCodeResult{Subject: subjectID, Code: code, ExpiresIn: deps.TTL}
	err = deps.Notifier.Notify(ctx, audit.Message{
		Event:     EventSendEmail,
		Timestamp: deps.Now().UTC(),
		Payload: EmailRequest{
			Type: EmailTypeReset,
			To:   email,
			Data: map[string]string{"code": code},
		},
	})
	if err != nil {
		res.Failure = VerificationFailureNotify
		res.Err = err
	}
	return res
}

// RunVerifyResetCode consumes subjectID's pending code. A correct code can be
// used once; wrong guesses count toward MaxAttempts.
func RunVerifyResetCode(ctx context.Context, subjectID, code string, deps ResetCodeDeps) ResetCodeResult {
	subjectID = strings.TrimSpace(subjectID)
	code = strings.TrimSpace(code)
	if !validSubjectID(subjectID) {
		return ResetCodeResult{Failure: VerificationFailureInvalidInput, Err: ErrInvalidSubject}
	}
	res := ResetCodeResult{Subject: subjectID}

	err := deps.Codes.Consume(ctx, subjectID, hashCode(subjectID, code), deps.MaxAttempts)
	switch {
	case err == nil:
		return res
	case errors.Is(err, session.ErrCodeNotFound):
		res.Failure = VerificationFailureCodeNotFound
	case errors.Is(err, session.ErrCodeMismatch):
		res.Failure = VerificationFailureCodeMismatch
	case errors.Is(err, session.ErrCodeAttemptsExceeded):
		res.Failure = VerificationFailureAttemptsExceeded
	default:
		res.Failure = VerificationFailureStore
		res.Err = err
	}
	return res
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// hashCode binds a code to its subject so equal codes for different
// subjects never share a hash.
func hashCode(subjectID, code string) [32]byte {
	return sha256.Sum256([]byte(subjectID + "\x00" + code))
}

func randomDigits(r io.Reader, n int) (string, error) {
	if n <= 0 || n > 18 {
		return "", fmt.Errorf("reset code length %d out of range", n)
	}
	if r == nil {
		r = rand.Reader
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(r, limit)
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
