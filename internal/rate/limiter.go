package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/warden/internal/store"
	"github.com/redis/go-redis/v9"
)

// checkScript returns {blocked, count, windowExpiry, blockExpiry}.
//
// KEYS[1] bucket key. ARGV: limit, window seconds, now (unix seconds).
const checkScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local record
local raw = redis.call("GET", key)
if raw then
  record = cjson.decode(raw)
  if type(record) ~= "table" then
    return redis.error_reply("corrupt rate limit record")
  end
else
  record = {count = 0, windowExpiry = now + window, blockExpiry = 0}
end
record.count = tonumber(record.count) or 0
record.windowExpiry = tonumber(record.windowExpiry) or 0
record.blockExpiry = tonumber(record.blockExpiry) or 0

if record.blockExpiry > now then
  return {1, record.count, record.windowExpiry, record.blockExpiry}
end

if record.windowExpiry <= now then
  record.count = 0
  record.windowExpiry = now + window
end

record.count = record.count + 1

if record.count > limit then
  record.blockExpiry = now + window
  local keep = math.max(record.blockExpiry, record.windowExpiry) - now
  redis.call("SET", key, cjson.encode(record), "EX", keep)
  return {1, record.count, record.windowExpiry, record.blockExpiry}
end

redis.call("SET", key, cjson.encode(record), "EX", record.windowExpiry - now)
return {0, record.count, record.windowExpiry, record.blockExpiry}
`

var checkLua = redis.NewScript(checkScript)

// Rule is the budget applied to one route.
type Rule struct {
	Limit  int
	Window time.Duration
	KeyBy  KeyBy
}

// Validate checks that the rule can be expressed in whole seconds.
func (r Rule) Validate() error {
	if r.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0", ErrInvalidRule)
	}
	if r.Window < time.Second {
		return fmt.Errorf("%w: window must be >= 1s", ErrInvalidRule)
	}
	if _, err := ParseKeyBy(string(r.KeyBy)); err != nil {
		return err
	}
	return nil
}

// Policy maps routes to rules with a fallback.
type Policy struct {
	Default Rule
	Routes  map[string]Rule
}

// RuleFor returns the rule for route, or the default.
func (p Policy) RuleFor(route string) Rule {
	if r, ok := p.Routes[route]; ok {
		return r
	}
	return p.Default
}

// Validate checks the default and every route rule.
func (p Policy) Validate() error {
	if err := p.Default.Validate(); err != nil {
		return fmt.Errorf("default rule: %w", err)
	}
	for route, r := range p.Routes {
		if strings.TrimSpace(route) == "" {
			return fmt.Errorf("%w: empty route", ErrInvalidRule)
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("route %q: %w", route, err)
		}
	}
	return nil
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed      bool
	Key          string
	Count        int64
	Limit        int
	WindowExpiry time.Time
	BlockExpiry  time.Time
	// RetryAfter is the whole-second wait before the bucket unblocks. Zero
	// when allowed.
	RetryAfter time.Duration
}

// Remaining returns the requests left in the current window.
func (d Decision) Remaining() int {
	if !d.Allowed {
		return 0
	}
	if left := int64(d.Limit) - d.Count; left > 0 {
		return int(left)
	}
	return 0
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter enforces per-route request budgets with one Redis round-trip per check.
type Limiter struct {
	exec *store.Executor
	now  func() time.Time
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(client redis.Scripter, timeout time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		exec: store.NewExecutor(client, timeout),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request by id against rule on route.
func (l *Limiter) Check(ctx context.Context, rule Rule, id Identity, route string) (Decision, error) {
	if err := rule.Validate(); err != nil {
		return Decision{}, err
	}

	key := Key(rule.KeyBy, id, route)
	now := l.now().Unix()
	window := int64(rule.Window / time.Second)

	res, err := l.exec.Run(ctx, checkLua, []string{key}, rule.Limit, window, now)
	if err != nil {
		return Decision{}, err
	}
	vals, err := store.Int64s(res, 4)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	d := Decision{
		Allowed:      vals[0] == 0,
		Key:          key,
		Count:        vals[1],
		Limit:        rule.Limit,
		WindowExpiry: time.Unix(vals[2], 0),
	}
	if vals[3] > 0 {
		d.BlockExpiry = time.Unix(vals[3], 0)
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(vals[3]-now) * time.Second
	}
	return d, nil
}
