//go:build integration
// +build integration

package test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/warden"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush the test DB to avoid state leaking between runs.
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}

	return modes
}

// mutableClock lets a test move the engine past access expiry.
type mutableClock struct {
	offset time.Duration
}

func (c *mutableClock) Now() time.Time { return time.Now().Add(c.offset) }

func (c *mutableClock) Advance(d time.Duration) { c.offset += d }

func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient, clock *mutableClock) *warden.Engine {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	cfg := warden.DefaultConfig()
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.RateLimit.Default = warden.RateRule{Limit: 3, Window: time.Minute, KeyBy: warden.KeyByIP}

	b := warden.New().WithConfig(cfg).WithRedis(rdb)
	if clock != nil {
		b = b.WithClock(clock.Now)
	}
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

// sessionKeys lists session keys for one subject via SCAN.
func sessionKeys(t *testing.T, rdb redis.UniversalClient, kind, subject string) []string {
	t.Helper()
	var out []string
	iter := rdb.Scan(context.Background(), 0, "SESSION:"+kind+":"+subject+":*", 100).Iterator()
	for iter.Next(context.Background()) {
		out = append(out, iter.Val())
	}
	require.NoError(t, iter.Err())
	return out
}

func tokenIDFromKey(key string) string {
	return key[strings.LastIndexByte(key, ':')+1:]
}
