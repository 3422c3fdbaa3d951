package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCodePrefix namespaces one-time verification codes.
	DefaultCodePrefix = "reset"
	// DefaultClaimPrefix namespaces single-use token markers.
	DefaultClaimPrefix = "used"

	codeConsumeRetries = 4
)

var (
	// ErrCodeNotFound is returned when no code is pending for the subject, or
	// it has expired.
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrCodeMismatch is returned for a wrong code that still has attempts left.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrCodeAttemptsExceeded is returned when a wrong code used up the last
	// attempt. The pending code is deleted.
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
)

type codeRecord struct {
	UID      string `json:"uid"`
	Hash     []byte `json:"h"`
	Attempts int    `json:"a"`
}

// CodeStore keeps at most one pending verification code per subject, stored
// as a hash with an attempt counter, and single-use markers for consumed
// tokens.
//
// CodeStore is safe for concurrent use.
type CodeStore struct {
	store       *Store
	prefix      string
	claimPrefix string
}

// NewCodeStore creates a code store that shares s's client and timeout.
// prefix defaults to DefaultCodePrefix.
func NewCodeStore(s *Store, prefix string) *CodeStore {
	if prefix == "" {
		prefix = DefaultCodePrefix
	}
	return &CodeStore{store: s, prefix: prefix, claimPrefix: DefaultClaimPrefix}
}

// Key returns the Redis key holding subject's pending code.
func (c *CodeStore) Key(subject string) string {
	return joinKey(c.prefix, subject)
}

// Save stores hash as subject's pending code, replacing any earlier one.
//
//	Performance: 1 Redis SET.
func (c *CodeStore) Save(ctx context.Context, subject string, hash [32]byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	data, err := json.Marshal(codeRecord{UID: subject, Hash: hash[:]})
	if err != nil {
		return err
	}

	key := c.Key(subject)
	return c.store.exec.Do(ctx, func(ctx context.Context) error {
		return c.store.redis.Set(ctx, key, data, ttl).Err()
	})
}

// Consume checks hash against subject's pending code. A match deletes the
// code. A mismatch counts an attempt; the attempt that reaches maxAttempts
// deletes the code and returns ErrCodeAttemptsExceeded.
//
//	Performance: WATCH, GET, PTTL and one MULTI/EXEC, retried on contention.
//	Security: hashes are compared in constant time.
func (c *CodeStore) Consume(ctx context.Context, subject string, hash [32]byte, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	key := c.Key(subject)

	var outcome error
	check := func(ctx context.Context) func(tx *redis.Tx) error {
		return func(tx *redis.Tx) error {
			outcome = nil

			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				outcome = ErrCodeNotFound
				return nil
			}
			if err != nil {
				return err
			}

			var rec codeRecord
			if err := json.Unmarshal(data, &rec); err != nil || rec.UID != subject {
				outcome = ErrCodeNotFound
				return deleteInTx(ctx, tx, key)
			}

			if subtle.ConstantTimeCompare(rec.Hash, hash[:]) == 1 {
				return deleteInTx(ctx, tx, key)
			}

			rec.Attempts++
			if rec.Attempts >= maxAttempts {
				outcome = ErrCodeAttemptsExceeded
				return deleteInTx(ctx, tx, key)
			}

			ttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				outcome = ErrCodeNotFound
				return deleteInTx(ctx, tx, key)
			}
			updated, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			outcome = ErrCodeMismatch
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}
	}

	err := c.store.exec.Do(ctx, func(ctx context.Context) error {
		for i := 0; i < codeConsumeRetries; i++ {
			err := c.store.redis.Watch(ctx, check(ctx), key)
			if errors.Is(err, redis.TxFailedErr) {
				continue
			}
			return err
		}
		return fmt.Errorf("code for %q kept changing: %w", subject, redis.TxFailedErr)
	})
	if err != nil {
		return err
	}
	return outcome
}

// Claim marks id as used for ttl. It reports whether this call made the
// claim; a second claim of the same id returns false.
//
//	Performance: 1 Redis SET NX.
func (c *CodeStore) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if id == "" {
		return false, nil
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	key := joinKey(c.claimPrefix, id)
	var created bool
	err := c.store.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = c.store.redis.SetNX(ctx, key, "1", ttl).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func deleteInTx(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}
