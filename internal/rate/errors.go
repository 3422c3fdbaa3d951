package rate

import (
	"errors"

	"github.com/MrEthical07/warden/internal/store"
)

var (
	// ErrRateLimited is returned alongside a blocked Decision by callers that
	// prefer error-style control flow.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable classifies store failures during a check.
	ErrRedisUnavailable = store.ErrUnavailable
	// ErrInvalidRule is returned for non-positive limits or sub-second windows.
	ErrInvalidRule = errors.New("invalid rate limit rule")
)
