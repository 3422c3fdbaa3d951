package warden

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrAccessTokenRequired, http.StatusBadRequest},
		{ErrInvalidSubject, http.StatusBadRequest},
		{ErrInvalidEmail, http.StatusBadRequest},
		{&RateLimitedError{RetryAfter: time.Minute}, http.StatusTooManyRequests},
		{ErrRefreshTooEarly, http.StatusForbidden},
		{ErrRefreshWindowExceeded, http.StatusForbidden},
		{errBotRefresh, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", ErrStoreUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: bus down", ErrNotifyFailed), http.StatusServiceUnavailable},
		{ErrTokenInvalid, http.StatusUnauthorized},
		{ErrSessionNotFound, http.StatusUnauthorized},
		{ErrAccessRevoked, http.StatusUnauthorized},
		{ErrTokenAlreadyUsed, http.StatusUnauthorized},
		{ErrCodeInvalid, http.StatusUnauthorized},
		{ErrCodeAttemptsExceeded, http.StatusUnauthorized},
		{ErrConfiguration, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), "StatusCode(%v)", tt.err)
	}
}

func TestRateLimitedErrorUnwraps(t *testing.T) {
	var err error = &RateLimitedError{RetryAfter: 42 * time.Second, Key: "rate_limit:ip:1.2.3.4:/login"}
	require.ErrorIs(t, err, ErrRateLimited)
	var rl *RateLimitedError
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &rl)
	assert.Equal(t, 42*time.Second, rl.RetryAfter)
}

func TestAuditErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrRefreshTooEarly, auditErrForbidden},
		{ErrSessionNotFound, auditErrSessionNotFound},
		{ErrTokenInvalid, auditErrInvalidToken},
		{ErrAccessRevoked, auditErrUnauthorized},
		{ErrStoreUnavailable, auditErrUnavailable},
		{&RateLimitedError{}, auditErrRateLimited},
		{ErrInvalidSubject, auditErrBadRequest},
		{ErrInvalidEmail, auditErrBadRequest},
		{fmt.Errorf("%w: bus down", ErrNotifyFailed), auditErrUnavailable},
		{ErrTokenAlreadyUsed, auditErrInvalidToken},
		{ErrCodeInvalid, auditErrUnauthorized},
		{ErrCodeAttemptsExceeded, auditErrUnauthorized},
		{errors.New("x"), auditErrInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, auditErrorCode(tt.err), "auditErrorCode(%v)", tt.err)
	}
}
