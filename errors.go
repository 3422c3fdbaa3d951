package warden

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/warden/internal/store"
	"github.com/MrEthical07/warden/jwt"
	"github.com/MrEthical07/warden/session"
)

var (
	// ErrConfiguration reports a missing key or an invalid setting.
	ErrConfiguration = jwt.ErrConfiguration
	// ErrTokenInvalid reports a bad signature, expiry or token type.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	// ErrSessionNotFound reports a refresh session that is gone or already rotated.
	ErrSessionNotFound = session.ErrSessionNotFound
	// ErrStoreUnavailable reports a Redis failure or timeout. The outcome of the
	// operation is unknown and callers should treat it as failed.
	ErrStoreUnavailable = store.ErrUnavailable
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	// ErrRefreshTooEarly is returned while the presented access token is still valid.
	ErrRefreshTooEarly = fmt.Errorf("%w: access token has not expired", ErrForbidden)
	// ErrRefreshWindowExceeded is returned when the access token expired more
	// than the refresh window ago.
	ErrRefreshWindowExceeded = fmt.Errorf("%w: refresh window exceeded", ErrForbidden)
	ErrAccessTokenRequired   = errors.New("access token required")
	ErrAccessRevoked         = fmt.Errorf("%w: access token revoked", ErrUnauthorized)
	ErrInvalidSubject        = errors.New("invalid subject")
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrEngineNotReady        = errors.New("engine not initialized")
	// ErrTokenAlreadyUsed is returned for a confirmation token redeemed before.
	ErrTokenAlreadyUsed = fmt.Errorf("%w: token already used", ErrTokenInvalid)
	// ErrCodeInvalid covers a wrong, expired or never issued reset code.
	ErrCodeInvalid = fmt.Errorf("%w: verification code invalid", ErrUnauthorized)
	// ErrCodeAttemptsExceeded is returned by the guess that used the last
	// attempt. The code is gone and a new one must be issued.
	ErrCodeAttemptsExceeded = fmt.Errorf("%w: verification code attempts exceeded", ErrUnauthorized)
	// ErrNotifyFailed reports that a notification event could not be
	// published. The token or code was still issued.
	ErrNotifyFailed = errors.New("notification publish failed")
)

// RateLimitedError carries the wait before the caller may retry.
type RateLimitedError struct {
	RetryAfter time.Duration
	Key        string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// StatusCode maps an engine error to the HTTP status a handler should send.
// The mapping never depends on error text.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAccessTokenRequired), errors.Is(err, ErrInvalidSubject), errors.Is(err, ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrNotifyFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrSessionNotFound):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
