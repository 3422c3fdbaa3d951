package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/warden/internal/store"
	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when Redis cannot be reached or replies
// with an error. The outcome of a write that fails this way is unknown.
var ErrStoreUnavailable = store.ErrUnavailable

// ErrSessionNotFound is returned when the addressed session key does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidTTL is returned for non-positive TTLs on writes.
var ErrInvalidTTL = errors.New("session ttl must be > 0")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRotated  int64 = 1
)

// rotateSessionScript deletes KEYS[1] and, only if it existed, creates KEYS[2].
// DEL's return value is the compare half of the swap.
const rotateSessionScript = `
if redis.call("DEL", KEYS[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
return 1
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

// Store persists session records and the access blacklist.
//
// Store is safe for concurrent use.
type Store struct {
	redis           redis.UniversalClient
	exec            *store.Executor
	prefix          string
	blacklistPrefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the session key namespace (DefaultPrefix when empty); timeout
// bounds each Redis round-trip.
func NewStore(client redis.UniversalClient, prefix string, timeout time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:           client,
		exec:            store.NewExecutor(client, timeout),
		prefix:          prefix,
		blacklistPrefix: DefaultBlacklistPrefix,
	}
}

// Key returns the Redis key of one session.
func (s *Store) Key(kind, subject, tokenID string) string {
	return joinKey(s.prefix, kind, subject, tokenID)
}

func (s *Store) scanPattern(kind, subject string) string {
	return joinKey(s.prefix, escapeGlob(kind), escapeGlob(subject), "*")
}

func (s *Store) blacklistKey(jti string) string {
	return joinKey(s.blacklistPrefix, jti)
}

// Put creates or overwrites a session.
//
//	Performance: 1 Redis SET.
func (s *Store) Put(ctx context.Context, kind, subject, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	data, err := Encode(Record{UID: subject})
	if err != nil {
		return err
	}

	key := s.Key(kind, subject, tokenID)
	return s.exec.Do(ctx, func(ctx context.Context) error {
		return s.redis.Set(ctx, key, data, ttl).Err()
	})
}

// Get returns the stored record.
func (s *Store) Get(ctx context.Context, kind, subject, tokenID string) (*Record, error) {
	key := s.Key(kind, subject, tokenID)

	var data []byte
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = s.redis.Get(ctx, key).Bytes()
		return err
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return Decode(data)
}

// Delete removes a session. Deleting a missing session is not an error.
//
//	Performance: 1 Redis DEL.
func (s *Store) Delete(ctx context.Context, kind, subject, tokenID string) error {
	key := s.Key(kind, subject, tokenID)
	return s.exec.Do(ctx, func(ctx context.Context) error {
		return s.redis.Del(ctx, key).Err()
	})
}

// Exists reports whether the session key is present.
func (s *Store) Exists(ctx context.Context, kind, subject, tokenID string) (bool, error) {
	key := s.Key(kind, subject, tokenID)

	var n int64
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.redis.Exists(ctx, key).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TTL returns the remaining lifetime of a session.
func (s *Store) TTL(ctx context.Context, kind, subject, tokenID string) (time.Duration, error) {
	key := s.Key(kind, subject, tokenID)

	var ttl time.Duration
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		ttl, err = s.redis.PTTL(ctx, key).Result()
		return err
	})
	if err != nil {
		return 0, err
	}
	// -2: missing key. -1: no expiry, which this package never writes.
	if ttl < 0 {
		return 0, ErrSessionNotFound
	}
	return ttl, nil
}

// Rotate atomically replaces session oldID with newID. When oldID no longer
// exists nothing is written and ErrSessionNotFound is returned, so of several
// concurrent rotations of the same session exactly one succeeds.
//
//	Performance: 1 Lua EVALSHA.
//	Security: CAS prevents two refreshes of one token from both minting sessions.
func (s *Store) Rotate(ctx context.Context, kind, subject, oldID, newID string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	data, err := Encode(Record{UID: subject})
	if err != nil {
		return err
	}

	res, err := s.exec.Run(
		ctx,
		rotateSessionLua,
		[]string{s.Key(kind, subject, oldID), s.Key(kind, subject, newID)},
		data,
		ttl.Milliseconds(),
	)
	if err != nil {
		return err
	}

	code, err := store.Int64(res)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch code {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrSessionNotFound
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrStoreUnavailable, code)
	}
}

// Count scans the sessions of one subject.
// This is an admin-only O(n) operation and must not be used in request hot paths.
func (s *Store) Count(ctx context.Context, kind, subject string) (int, error) {
	pattern := s.scanPattern(kind, subject)
	var total int

	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
			if err != nil {
				return err
			}
			total += len(keys)
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// RevokeAccess blacklists an access token id for ttl. It reports whether
// this call created the entry; an existing entry is left untouched.
func (s *Store) RevokeAccess(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, nil
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	key := s.blacklistKey(jti)
	var created bool
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.redis.SetNX(ctx, key, "1", ttl).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// IsAccessRevoked reports whether jti is blacklisted.
func (s *Store) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	key := s.blacklistKey(jti)
	var n int64
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.redis.Exists(ctx, key).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		return s.redis.Ping(ctx).Err()
	})
	return time.Since(start), err
}
