package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the session engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionCorrupt is returned when a stored session blob cannot be parsed.
var ErrSessionCorrupt = errors.New("session blob corrupt")

// ErrRotateSessionNotFound is returned when the rotation target session does not exist.
var ErrRotateSessionNotFound = errors.New("rotate session not found")

// ErrRotateSessionExpired is returned when the rotation target session has no TTL left.
var ErrRotateSessionExpired = errors.New("rotate session expired")

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusInvalidBlob int64 = 2
	rotateStatusRotated     int64 = 3
)

const (
	touchStatusNotFound    int64 = 0
	touchStatusExpired     int64 = 1
	touchStatusInvalidBlob int64 = 2
	touchStatusTouched     int64 = 3
)

const writeBE64Lua = `
local function write_be64(n)
  local b = {}
  for i = 8, 1, -1 do
    b[i] = n % 256
    n = math.floor(n / 256)
  end
  return string.char(b[1], b[2], b[3], b[4], b[5], b[6], b[7], b[8])
end
`

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  elseif count == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// touchSessionScript splices a fresh last-activity timestamp into the stored
// blob and re-arms the idle TTL. The timestamp lives at a fixed offset from
// the end of the blob, so no full decode happens inside Redis.
const touchSessionScript = writeBE64Lua + `
local key = KEYS[1]
local now_unix = tonumber(ARGV[1])
local ttl_ms = tonumber(ARGV[2])

local data = redis.call("GET", key)
if not data then
  return 0
end
if #data < 27 then
  return 2
end

local ttl = redis.call("PTTL", key)
if ttl <= 0 and ttl ~= -1 then
  redis.call("DEL", key)
  return 1
end

local head = string.sub(data, 1, #data - 16)
local tail = string.sub(data, #data - 7)
local updated = head .. write_be64(now_unix) .. tail

redis.call("SET", key, updated, "PX", ttl_ms)
return 3
`

var touchSessionLua = redis.NewScript(touchSessionScript)

// rotateSessionScript atomically re-keys a session under a fresh identifier.
// It copies the blob with last-activity and last-rotated set to now, creates
// the new key, deletes the old one, and swaps the operator index entry. The
// old identifier is never valid once the script returns.
const rotateSessionScript = writeBE64Lua + `
local old_key = KEYS[1]
local new_key = KEYS[2]
local operator_key = KEYS[3]
local old_sid = ARGV[1]
local new_sid = ARGV[2]
local now_unix = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local data = redis.call("GET", old_key)
if not data then
  return {0}
end
if #data < 27 then
  redis.call("DEL", old_key)
  redis.call("SREM", operator_key, old_sid)
  return {2}
end

local ttl = redis.call("PTTL", old_key)
if ttl <= 0 and ttl ~= -1 then
  redis.call("DEL", old_key)
  redis.call("SREM", operator_key, old_sid)
  return {1}
end

local ts = write_be64(now_unix)
local updated = string.sub(data, 1, #data - 16) .. ts .. ts

redis.call("SET", new_key, updated, "PX", ttl_ms)
redis.call("DEL", old_key)
redis.call("SREM", operator_key, old_sid)
redis.call("SADD", operator_key, new_sid)

return {3, updated}
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

// Store is a Redis-backed session store that handles persistence, idle
// expiry backstops, activity touches, and atomic identifier rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) operatorKey(operatorID string) string {
	return "cvo:" + operatorID
}

func (s *Store) countKey() string {
	return "cvt:count"
}

// Save persists a [Session] to Redis with the given idle TTL.
//
//	Performance: 3 Redis commands in one transaction (SET + index + counter).
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.SessionID)
	operatorKey := s.operatorKey(sess.OperatorID)
	countKey := s.countKey()

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, operatorKey, sess.SessionID)
		pipe.Incr(ctx, countKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by session ID. Returns the decoded [Session],
// redis.Nil when absent, or a wrapped backend error.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID

	return sess, nil
}

// Touch records activity on a session: last-activity becomes now and the
// idle TTL restarts. Returns redis.Nil when the session no longer exists.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Touch(ctx context.Context, sessionID string, now time.Time, ttl time.Duration) error {
	result, err := touchSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		now.Unix(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch result {
	case touchStatusNotFound, touchStatusExpired:
		return redis.Nil
	case touchStatusInvalidBlob:
		return ErrSessionCorrupt
	case touchStatusTouched:
		return nil
	default:
		return fmt.Errorf("%w: unknown touch script status", ErrRedisUnavailable)
	}
}

// Rotate atomically re-keys a session from oldSessionID to newSessionID
// using a Lua script. The old identifier stops resolving in the same
// atomic step that makes the new one live; there is no window in which
// both (or neither) work while the script succeeds. On any error the
// caller must treat the session as unusable.
//
//	Performance: 1 Lua EVALSHA (atomic re-key).
func (s *Store) Rotate(
	ctx context.Context,
	oldSessionID, newSessionID, operatorID string,
	now time.Time,
	ttl time.Duration,
) (*Session, error) {
	result, err := rotateSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(oldSessionID), s.key(newSessionID), s.operatorKey(operatorID)},
		oldSessionID,
		newSessionID,
		now.Unix(),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrRotateSessionNotFound)
	case rotateStatusExpired:
		return nil, errors.Join(redis.Nil, ErrRotateSessionExpired)
	case rotateStatusInvalidBlob:
		return nil, ErrSessionCorrupt
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated session payload", ErrRedisUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated session payload", ErrRedisUnavailable)
		}

		sess, decErr := Decode(blob)
		if decErr != nil {
			return nil, errors.Join(ErrSessionCorrupt, decErr)
		}
		sess.SessionID = newSessionID
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Delete removes a session from Redis, its operator index entry, and
// decrements the session counter. Idempotent: deleting a missing session
// is not an error.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Delete(ctx context.Context, sessionID, operatorID string) error {
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.operatorKey(operatorID), s.countKey()},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// TotalSessionCount returns the tracked store-wide session counter.
func (s *Store) TotalSessionCount(ctx context.Context) (int, error) {
	count, err := s.redis.Get(ctx, s.countKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// ActiveSessionCount returns the number of tracked session IDs for an operator.
func (s *Store) ActiveSessionCount(ctx context.Context, operatorID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.operatorKey(operatorID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// ActiveSessionIDs returns tracked session IDs for an operator.
func (s *Store) ActiveSessionIDs(ctx context.Context, operatorID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.operatorKey(operatorID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
