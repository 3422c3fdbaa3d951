package rate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newLimiterTest(t *testing.T) (*Limiter, *clock, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &clock{now: time.Unix(1_760_000_000, 0)}
	return New(rdb, time.Second, WithClock(c.Now)), c, mr, rdb
}

var authRule = Rule{Limit: 5, Window: 60 * time.Second, KeyBy: KeyByIP}

func TestSixthCallBlockedThenResetAfterBlockExpiry(t *testing.T) {
	l, c, _, _ := newLimiterTest(t)
	ctx := context.Background()
	id := Identity{IP: "203.0.113.7"}

	for i := 1; i <= 5; i++ {
		d, err := l.Check(ctx, authRule, id, "/auth/login")
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i)
		assert.Equal(t, int64(i), d.Count)
		assert.Equal(t, 5-i, d.Remaining())
		c.Advance(time.Second)
	}

	d, err := l.Check(ctx, authRule, id, "/auth/login")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, int64(6), d.Count)
	assert.Equal(t, 60*time.Second, d.RetryAfter)
	assert.Equal(t, c.Now().Add(60*time.Second), d.BlockExpiry)

	// While blocked nothing is counted.
	c.Advance(30 * time.Second)
	d, err = l.Check(ctx, authRule, id, "/auth/login")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, int64(6), d.Count)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	c.Advance(30 * time.Second)
	d, err = l.Check(ctx, authRule, id, "/auth/login")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
	assert.Zero(t, d.RetryAfter)
}

func TestWindowLapseResetsCount(t *testing.T) {
	l, c, _, _ := newLimiterTest(t)
	ctx := context.Background()
	id := Identity{IP: "198.51.100.1"}

	for i := 0; i < 4; i++ {
		_, err := l.Check(ctx, authRule, id, "/r")
		require.NoError(t, err)
	}
	c.Advance(60 * time.Second)

	d, err := l.Check(ctx, authRule, id, "/r")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
	assert.Equal(t, c.Now().Add(60*time.Second), d.WindowExpiry)
}

func TestRecordFormatAndTTL(t *testing.T) {
	l, c, mr, rdb := newLimiterTest(t)
	ctx := context.Background()
	id := Identity{UserID: "u-1"}
	rule := Rule{Limit: 2, Window: 10 * time.Second, KeyBy: KeyByUser}

	_, err := l.Check(ctx, rule, id, "/x")
	require.NoError(t, err)

	key := "rate_limit:user:u-1:/x"
	raw, err := rdb.Get(ctx, key).Result()
	require.NoError(t, err)

	var rec struct {
		Count        int64 `json:"count"`
		WindowExpiry int64 `json:"windowExpiry"`
		BlockExpiry  int64 `json:"blockExpiry"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, int64(1), rec.Count)
	assert.Equal(t, c.Now().Unix()+10, rec.WindowExpiry)
	assert.Equal(t, int64(0), rec.BlockExpiry)
	assert.Equal(t, 10*time.Second, mr.TTL(key))

	c.Advance(4 * time.Second)
	_, err = l.Check(ctx, rule, id, "/x")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, mr.TTL(key))
}

func TestBucketsAreIsolatedByRouteAndIdentity(t *testing.T) {
	l, _, _, _ := newLimiterTest(t)
	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute, KeyBy: KeyByIPUser}

	d, err := l.Check(ctx, rule, Identity{IP: "1.1.1.1", UserID: "a"}, "/one")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Check(ctx, rule, Identity{IP: "1.1.1.1", UserID: "a"}, "/one")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = l.Check(ctx, rule, Identity{IP: "1.1.1.1", UserID: "a"}, "/two")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Check(ctx, rule, Identity{IP: "1.1.1.1", UserID: "b"}, "/one")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestKeyStrategies(t *testing.T) {
	id := Identity{UserID: "u-9", IP: "10.0.0.1"}
	assert.Equal(t, "rate_limit:user:u-9:/p", Key(KeyByUser, id, "/p"))
	assert.Equal(t, "rate_limit:ip:10.0.0.1:/p", Key(KeyByIP, id, "/p"))
	assert.Equal(t, "rate_limit:ipuser:10.0.0.1:u-9:/p", Key(KeyByIPUser, id, "/p"))

	anon := Identity{}
	assert.Equal(t, "rate_limit:user:anonymous:/p", Key(KeyByUser, anon, "/p"))
	assert.Equal(t, "rate_limit:ip:anonymous:/p", Key(KeyByIP, anon, "/p"))
	assert.Equal(t, "rate_limit:ipuser:anonymous:anonymous:/p", Key(KeyByIPUser, anon, "/p"))

	by, err := ParseKeyBy("ip+user")
	require.NoError(t, err)
	assert.Equal(t, KeyByIPUser, by)
	_, err = ParseKeyBy("tenant")
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestRuleValidation(t *testing.T) {
	l, _, _, _ := newLimiterTest(t)
	ctx := context.Background()

	_, err := l.Check(ctx, Rule{Limit: 0, Window: time.Minute}, Identity{}, "/")
	assert.ErrorIs(t, err, ErrInvalidRule)
	_, err = l.Check(ctx, Rule{Limit: 1, Window: 500 * time.Millisecond}, Identity{}, "/")
	assert.ErrorIs(t, err, ErrInvalidRule)

	p := Policy{Default: authRule, Routes: map[string]Rule{"/hot": {Limit: 100, Window: time.Second, KeyBy: KeyByUser}}}
	require.NoError(t, p.Validate())
	assert.Equal(t, 100, p.RuleFor("/hot").Limit)
	assert.Equal(t, 5, p.RuleFor("/cold").Limit)

	p.Routes[""] = authRule
	assert.ErrorIs(t, p.Validate(), ErrInvalidRule)
}

func TestStoreErrorsAreClassified(t *testing.T) {
	l, _, mr, _ := newLimiterTest(t)
	mr.SetError("MASTERDOWN")

	_, err := l.Check(context.Background(), authRule, Identity{IP: "1.2.3.4"}, "/")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestCorruptRecordIsAnError(t *testing.T) {
	l, _, _, rdb := newLimiterTest(t)
	ctx := context.Background()
	require.NoError(t, rdb.Set(ctx, "rate_limit:ip:9.9.9.9:/", "{{{", time.Minute).Err())

	_, err := l.Check(ctx, authRule, Identity{IP: "9.9.9.9"}, "/")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
