package session

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/warden/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	botScanCount      = 1000
	botDeleteBatchMax = 5000
)

// replaceBotSessionScript removes every key matching ARGV[1], deleting at most
// ARGV[4] keys per DEL, then writes KEYS[1]. Returns the number of keys removed.
const replaceBotSessionScript = `
local pattern = ARGV[1]
local batch = tonumber(ARGV[4])
local scan_count = tonumber(ARGV[5])
local removed = 0
local pending = {}
local cursor = "0"
repeat
  local page = redis.call("SCAN", cursor, "MATCH", pattern, "COUNT", scan_count)
  cursor = tostring(page[1])
  for _, key in ipairs(page[2]) do
    pending[#pending + 1] = key
    if #pending >= batch then
      removed = removed + redis.call("DEL", unpack(pending))
      pending = {}
    end
  end
until cursor == "0"
if #pending > 0 then
  removed = removed + redis.call("DEL", unpack(pending))
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return removed
`

var replaceBotSessionLua = redis.NewScript(replaceBotSessionScript)

// BotGuard enforces at most one live session per bot.
type BotGuard struct {
	store     *Store
	batchSize int
}

// NewBotGuard creates a guard that shares s's client, prefix and timeout.
func NewBotGuard(s *Store) *BotGuard {
	return &BotGuard{store: s, batchSize: botDeleteBatchMax}
}

// Replace deletes every existing session of botID and creates the single new
// one addressed by newTokenID, in one atomic script. It returns how many prior
// sessions were removed.
//
//	Performance: 1 Lua EVALSHA; O(n) in the bot's existing session keys.
func (g *BotGuard) Replace(ctx context.Context, kind, botID, newTokenID string, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, ErrInvalidTTL
	}
	data, err := Encode(Record{UID: botID})
	if err != nil {
		return 0, err
	}

	res, err := g.store.exec.Run(
		ctx,
		replaceBotSessionLua,
		[]string{g.store.Key(kind, botID, newTokenID)},
		g.store.scanPattern(kind, botID),
		data,
		ttl.Milliseconds(),
		g.batchSize,
		botScanCount,
	)
	if err != nil {
		return 0, err
	}

	removed, err := store.Int64(res)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(removed), nil
}
