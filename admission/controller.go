package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the session engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// admitScript registers a session slot only if the operator is below the
// ceiling. Re-admitting an already registered session is a no-op success,
// which makes retries after partial login failures safe.
const admitScript = `
local operator_key = KEYS[1]
local sid = ARGV[1]
local limit = tonumber(ARGV[2])
local entry = ARGV[3]

if redis.call("HEXISTS", operator_key, sid) == 1 then
  return 1
end

local count = redis.call("HLEN", operator_key)
if count >= limit then
  return 0
end

redis.call("HSET", operator_key, sid, entry)
return 1
`

var admitLua = redis.NewScript(admitScript)

// renameScript moves a registration from the old session identifier to the
// new one, carrying its payload, without passing through an empty or
// double-counted state.
const renameScript = `
local operator_key = KEYS[1]
local old_sid = ARGV[1]
local new_sid = ARGV[2]

local entry = redis.call("HGET", operator_key, old_sid)
if entry == false then
  return 0
end
redis.call("HDEL", operator_key, old_sid)
redis.call("HSET", operator_key, new_sid, entry)
return 1
`

var renameLua = redis.NewScript(renameScript)

// Entry is one registered live session. It exists only so sessions can be
// counted against the operator's ceiling; nothing authorizes off it.
type Entry struct {
	SessionID  string `json:"-"`
	OperatorID string `json:"op"`
	StartedAt  int64  `json:"at"`
	Origin     string `json:"origin,omitempty"`
}

// Controller defines a public type used by captivault APIs.
//
// Controller instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Controller struct {
	redis  redis.UniversalClient
	prefix string
	limit  int
}

// NewController creates an admission [Controller]. prefix sets the Redis key
// namespace; limit is the default per-operator session ceiling, used when a
// call does not carry an operator-specific one.
func NewController(redis redis.UniversalClient, prefix string, limit int) *Controller {
	return &Controller{
		redis:  redis,
		prefix: prefix,
		limit:  limit,
	}
}

func (c *Controller) operatorKey(operatorID string) string {
	return c.prefix + ":" + operatorID
}

// Limit returns the default per-operator session ceiling.
func (c *Controller) Limit() int {
	return c.limit
}

// Admit atomically counts the operator's registered sessions (the candidate
// excluded) and registers the candidate if a slot is free. limit <= 0 falls
// back to the controller default. Returns false when the ceiling is reached;
// no partial registration is possible.
//
//	Performance: 1 Lua EVALSHA.
func (c *Controller) Admit(ctx context.Context, operatorID, sessionID string, limit int, startedAt time.Time, origin string) (bool, error) {
	if limit <= 0 {
		limit = c.limit
	}
	payload, err := json.Marshal(Entry{
		OperatorID: operatorID,
		StartedAt:  startedAt.Unix(),
		Origin:     origin,
	})
	if err != nil {
		return false, err
	}
	result, err := admitLua.Run(
		ctx,
		c.redis,
		[]string{c.operatorKey(operatorID)},
		sessionID,
		limit,
		payload,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return result == 1, nil
}

// Release frees the slot held by a session. Idempotent: releasing an
// unregistered session is not an error.
func (c *Controller) Release(ctx context.Context, operatorID, sessionID string) error {
	if err := c.redis.HDel(ctx, c.operatorKey(operatorID), sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rename atomically moves a registration to a new session identifier,
// preserving its start time and origin. Used during identifier rotation so
// the slot never empties or double-counts. Returns false when the old
// identifier held no slot.
func (c *Controller) Rename(ctx context.Context, operatorID, oldSessionID, newSessionID string) (bool, error) {
	result, err := renameLua.Run(
		ctx,
		c.redis,
		[]string{c.operatorKey(operatorID)},
		oldSessionID,
		newSessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return result == 1, nil
}

// Count returns the number of registered sessions for an operator.
func (c *Controller) Count(ctx context.Context, operatorID string) (int, error) {
	count, err := c.redis.HLen(ctx, c.operatorKey(operatorID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Entries returns the registered sessions for an operator.
func (c *Controller) Entries(ctx context.Context, operatorID string) ([]Entry, error) {
	fields, err := c.redis.HGetAll(ctx, c.operatorKey(operatorID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	entries := make([]Entry, 0, len(fields))
	for sid, raw := range fields {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode admission entry: %w", err)
		}
		e.SessionID = sid
		entries = append(entries, e)
	}
	return entries, nil
}
