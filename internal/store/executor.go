package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout bounds a single store round-trip when none is configured.
const DefaultTimeout = 2 * time.Second

var (
	// ErrUnavailable classifies every store failure that is not a missing key.
	ErrUnavailable = errors.New("store unavailable")
	// ErrUnexpectedReply is returned when a script reply has the wrong shape.
	ErrUnexpectedReply = errors.New("unexpected script reply")
)

// Executor runs commands and scripts with a per-call timeout.
type Executor struct {
	client  redis.Scripter
	timeout time.Duration
}

// NewExecutor creates an executor. A non-positive timeout selects DefaultTimeout.
func NewExecutor(client redis.Scripter, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{client: client, timeout: timeout}
}

// Timeout reports the per-call timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run executes script atomically in one round-trip. A nil script reply is
// returned as redis.Nil, unwrapped.
func (e *Executor) Run(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := script.Run(ctx, e.client, keys, args...).Result()
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

// Do runs fn under the per-call timeout and classifies its error.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return Classify(fn(ctx))
}

// Classify maps a go-redis error onto the package taxonomy. redis.Nil passes
// through unchanged so callers can detect missing keys.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return err
	case errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// Int64 coerces a scalar script reply.
func Int64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnexpectedReply, n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnexpectedReply, v)
	}
}

// Int64s coerces an array script reply of exactly want elements.
func Int64s(v interface{}, want int) ([]int64, error) {
	parts, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedReply, v)
	}
	if len(parts) != want {
		return nil, fmt.Errorf("%w: got %d elements, want %d", ErrUnexpectedReply, len(parts), want)
	}

	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := Int64(p)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
