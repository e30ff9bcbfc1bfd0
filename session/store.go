package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures from Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when the session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

const (
	fieldUser    = "user"
	fieldPending = "pending"
	fieldCreated = "created"
)

// Only touches a live session; a missing hash must not be recreated without a TTL.
const setPendingScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "pending", ARGV[1])
return 1
`

var setPendingLua = redis.NewScript(setPendingScript)

// RENAME keeps the remaining TTL.
const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("RENAME", KEYS[1], KEYS[2])
redis.call("SREM", KEYS[3], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[2])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// Store persists sessions as Redis hashes under prefix:<id>, with a per-user
// index set under prefix:u:<user>.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore returns a store whose sessions live for ttl from creation.
func NewStore(redis redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create starts a session for userID with the second-factor flag cleared.
func (s *Store) Create(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: empty user id")
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	key := s.key(sess.ID)
	userKey := s.userKey(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldUser, userID,
			fieldPending, "0",
			fieldCreated, strconv.FormatInt(now.Unix(), 10),
		)
		pipe.PExpire(ctx, key, s.ttl)
		pipe.SAdd(ctx, userKey, sess.ID)
		pipe.PExpire(ctx, userKey, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sess, nil
}

// Get loads a session. Expired sessions return [ErrNotFound].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}

	key := s.key(sessionID)
	var (
		fields *redis.MapStringStringCmd
		ttl    *redis.DurationCmd
	)
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	m := fields.Val()
	if len(m) == 0 || m[fieldUser] == "" {
		return nil, ErrNotFound
	}

	sess := &Session{
		ID:                  sessionID,
		UserID:              m[fieldUser],
		PendingSecondFactor: m[fieldPending] == "1",
	}
	if created, err := strconv.ParseInt(m[fieldCreated], 10, 64); err == nil {
		sess.CreatedAt = time.Unix(created, 0).UTC()
	}
	if remaining := ttl.Val(); remaining > 0 {
		sess.ExpiresAt = s.now().Add(remaining)
	}
	return sess, nil
}

// SetPending sets or clears the pending second-factor flag.
func (s *Store) SetPending(ctx context.Context, sessionID string, pending bool) error {
	value := "0"
	if pending {
		value = "1"
	}
	ok, err := setPendingLua.Run(ctx, s.redis, []string{s.key(sessionID)}, value).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

// Rotate moves a session to a fresh ID and returns it. The old ID stops
// resolving immediately.
func (s *Store) Rotate(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	next := uuid.NewString()
	keys := []string{s.key(sessionID), s.key(next), s.userKey(sess.UserID)}
	ok, err := rotateLua.Run(ctx, s.redis, keys, sessionID, next).Int()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok == 0 {
		return "", ErrNotFound
	}
	return next, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs lists the indexed sessions for a user. The index can lag
// behind expiry; callers needing certainty should Get each ID.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// DeleteAllForUser removes every indexed session for userID and returns how
// many were listed.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(ids), nil
}
