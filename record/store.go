package record

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or script failure.
var ErrRedisUnavailable = errors.New("otp redis unavailable")

// ErrRecordCorrupt is returned when a stored value cannot be decoded.
var ErrRecordCorrupt = errors.New("otp record corrupt")

const (
	defaultPrefix    = "otp"
	defaultRetention = 24 * time.Hour
)

// insertScript stores a record and keeps the hash alive past the newest expiry.
// KEYS[1] = hash key
// ARGV[1] = record id
// ARGV[2] = encoded value
// ARGV[3] = key ttl in milliseconds
const insertScript = `
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
local ttl = tonumber(ARGV[3])
local current = redis.call("PTTL", KEYS[1])
if current < ttl then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`

// supersedeScript forces expiry on every active record of the hash.
// KEYS[1] = hash key
// ARGV[1] = now in unix milliseconds
const supersedeScript = `
local now = tonumber(ARGV[1])
local all = redis.call("HGETALL", KEYS[1])
local changed = 0
for i = 1, #all, 2 do
  local code, created, expires, verified = string.match(all[i + 1], "^(%d+)|(%d+)|(%d+)|(%d+)$")
  -- only records with expires > now move; already-expired ones keep their original expiry
  if code and verified == "0" and tonumber(expires) > now then
    redis.call("HSET", KEYS[1], all[i], code .. "|" .. created .. "|" .. ARGV[1] .. "|0")
    changed = changed + 1
  end
end
return changed
`

// consumeScript marks the active record carrying the submitted code as verified.
// KEYS[1] = hash key
// ARGV[1] = submitted code
// ARGV[2] = now in unix milliseconds
//
// Returns {id, value} on success, or error "expired" / "not_found".
const consumeScript = `
local now = tonumber(ARGV[2])
local all = redis.call("HGETALL", KEYS[1])
local expired = false
for i = 1, #all, 2 do
  local code, created, expires, verified = string.match(all[i + 1], "^(%d+)|(%d+)|(%d+)|(%d+)$")
  if code == ARGV[1] and verified == "0" then
    if tonumber(expires) > now then
      local updated = code .. "|" .. created .. "|" .. expires .. "|" .. ARGV[2]
      redis.call("HSET", KEYS[1], all[i], updated)
      return {all[i], updated}
    end
    expired = true
  end
end
if expired then
  return {err="expired"}
end
return {err="not_found"}
`

// sweepScript deletes records whose expiry is strictly before now.
// KEYS = hash keys
// ARGV[1] = now in unix milliseconds
const sweepScript = `
local now = tonumber(ARGV[1])
local removed = 0
for _, key in ipairs(KEYS) do
  local all = redis.call("HGETALL", key)
  for i = 1, #all, 2 do
    local expires = string.match(all[i + 1], "^%d+|%d+|(%d+)|%d+$")
    if not expires or tonumber(expires) < now then
      redis.call("HDEL", key, all[i])
      removed = removed + 1
    end
  end
  if redis.call("HLEN", key) == 0 then
    redis.call("DEL", key)
  end
end
return removed
`

var (
	insertLua    = redis.NewScript(insertScript)
	supersedeLua = redis.NewScript(supersedeScript)
	consumeLua   = redis.NewScript(consumeScript)
	sweepLua     = redis.NewScript(sweepScript)
)

// Store persists [Record] values in Redis.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore creates a record [Store]. An empty prefix defaults to "otp"; a
// non-positive retention defaults to 24h. Retention is how long a hash outlives
// the expiry of its newest record before Redis evicts it.
func NewStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Store{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *Store) key(userID string, ch Channel) string {
	return s.prefix + ":{" + userID + "}:" + string(ch)
}

func (s *Store) userKeys(userID string) []string {
	keys := make([]string, 0, len(Channels))
	for _, ch := range Channels {
		keys = append(keys, s.key(userID, ch))
	}
	return keys
}

// Insert persists rec. An empty ID is filled with a new UUID.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec == nil || rec.UserID == "" || !rec.Channel.Valid() {
		return fmt.Errorf("%w: incomplete record", ErrRecordCorrupt)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	ttl := rec.ExpiresAt.Sub(rec.CreatedAt) + s.retention
	if ttl < s.retention {
		ttl = s.retention
	}

	err := insertLua.Run(ctx, s.redis,
		[]string{s.key(rec.UserID, rec.Channel)},
		rec.ID,
		encode(rec),
		ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Supersede forces ExpiresAt = now on every active record of (userID, ch) and
// returns how many records changed.
func (s *Store) Supersede(ctx context.Context, userID string, ch Channel, now time.Time) (int64, error) {
	n, err := supersedeLua.Run(ctx, s.redis,
		[]string{s.key(userID, ch)},
		now.UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Consume atomically marks the active record of (userID, ch) carrying code as
// verified at now. It returns [ErrExpired] when only expired unconsumed matches
// exist and [ErrNotFound] when nothing unconsumed matches.
//
//	Performance: 1 Lua script (HGETALL + HSET).
func (s *Store) Consume(ctx context.Context, userID string, ch Channel, code string, now time.Time) (*Record, error) {
	result, err := consumeLua.Run(ctx, s.redis,
		[]string{s.key(userID, ch)},
		code,
		now.UnixMilli(),
	).StringSlice()
	if err != nil {
		switch err.Error() {
		case "expired":
			return nil, ErrExpired
		case "not_found":
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("%w: unexpected lua result", ErrRedisUnavailable)
	}

	return decode(userID, ch, result[0], result[1])
}

// DeleteExpired removes every record of userID, across channels, whose expiry is
// before now.
func (s *Store) DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error) {
	n, err := sweepLua.Run(ctx, s.redis, s.userKeys(userID), now.UnixMilli()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// DeleteAllExpired scans the hash keys under the prefix and removes every
// record whose expiry is before now. Keys of other types sharing the namespace
// are skipped. This is an O(n) maintenance operation for background sweeps.
func (s *Store) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	var (
		cursor uint64
		total  int64
	)

	for {
		keys, next, err := s.redis.ScanType(ctx, cursor, s.prefix+":*", 1000, "hash").Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, key := range keys {
			n, err := sweepLua.Run(ctx, s.redis, []string{key}, now.UnixMilli()).Int64()
			if err != nil {
				return total, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			total += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// List returns every stored record of (userID, ch), oldest first.
func (s *Store) List(ctx context.Context, userID string, ch Channel) ([]*Record, error) {
	all, err := s.redis.HGetAll(ctx, s.key(userID, ch)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(all))
	for id, value := range all {
		rec, err := decode(userID, ch, id, value)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func encode(rec *Record) string {
	var verified int64
	if rec.VerifiedAt != nil {
		verified = rec.VerifiedAt.UnixMilli()
	}

	var b strings.Builder
	b.Grow(len(rec.Code) + 48)
	b.WriteString(rec.Code)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(verified, 10))
	return b.String()
}

func decode(userID string, ch Channel, id, value string) (*Record, error) {
	parts := strings.Split(value, "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: %q", ErrRecordCorrupt, id)
	}

	var ms [3]int64
	for i, part := range parts[1:] {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrRecordCorrupt, id, err)
		}
		ms[i] = v
	}

	rec := &Record{
		ID:        id,
		UserID:    userID,
		Code:      parts[0],
		Channel:   ch,
		CreatedAt: time.UnixMilli(ms[0]),
		ExpiresAt: time.UnixMilli(ms[1]),
	}
	if ms[2] != 0 {
		verifiedAt := time.UnixMilli(ms[2])
		rec.VerifiedAt = &verifiedAt
	}
	return rec, nil
}
