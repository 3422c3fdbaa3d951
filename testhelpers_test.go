package warden

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_760_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testEdKeys(tb testing.TB) (ed25519.PrivateKey, ed25519.PublicKey) {
	tb.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(tb, err)
	return priv, pub
}

func testConfig(tb testing.TB) Config {
	tb.Helper()
	priv, pub := testEdKeys(tb)
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	return cfg
}

type testEnv struct {
	engine *Engine
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

// newTestEngine builds an engine on miniredis with a fake clock. mutate may
// be nil; configure may adjust the builder before Build.
func newTestEngine(tb testing.TB, mutate func(*Config), configure func(*Builder)) *testEnv {
	tb.Helper()

	mr := miniredis.RunT(tb)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := newTestClock()

	cfg := testConfig(tb)
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().WithConfig(cfg).WithRedis(rdb).WithClock(clock.Now)
	if configure != nil {
		configure(b)
	}
	engine, err := b.Build()
	require.NoError(tb, err)
	tb.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
	})

	return &testEnv{engine: engine, clock: clock, mr: mr, rdb: rdb}
}
