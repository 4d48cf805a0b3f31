package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/captivault/captivault/vault"
)

// ErrRedisUnavailable is an exported constant or variable used by the session engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no capture session exists for the identifier.
var ErrSessionNotFound = errors.New("capture session not found")

// ErrSessionExpired is returned when the capture session passed its absolute deadline.
var ErrSessionExpired = errors.New("capture session expired")

// ErrRecordNotFound is returned by MarkSent when no pending record matches.
var ErrRecordNotFound = errors.New("capture record not found")

// ErrRecordCorrupt is returned when a stored record blob cannot be parsed.
var ErrRecordCorrupt = errors.New("capture record corrupt")

// ErrIntegrity is returned when opening a stored envelope fails authentication.
var ErrIntegrity = errors.New("capture integrity check failed")

// ErrConcurrentUpdate is returned when an optimistic update loses too many races.
var ErrConcurrentUpdate = errors.New("concurrent capture update")

const maxCASRetries = 4

// keyBackstopSlack pads the Redis TTL on capture keys past the logical
// deadline. The deadline in the expiry index is authoritative on every code
// path; the slack keeps session metadata readable long enough for the sweep
// to attribute the session to its operator before purging.
const keyBackstopSlack = time.Hour

const (
	captureStatusNotFound int64 = 0
	captureStatusExpired  int64 = 1
	captureStatusOK       int64 = 2
)

// appendRecordScript pushes a record only while the capture session is both
// present and inside its absolute lifetime. The record list inherits the
// session key's remaining TTL so both expire together.
const appendRecordScript = `
local session_key = KEYS[1]
local records_key = KEYS[2]
local exp_key = KEYS[3]
local sid = ARGV[1]
local blob = ARGV[2]
local now_unix = tonumber(ARGV[3])

local score = redis.call("ZSCORE", exp_key, sid)
if not score then
  return 0
end
if tonumber(score) <= now_unix then
  return 1
end
if redis.call("EXISTS", session_key) == 0 then
  return 1
end

redis.call("RPUSH", records_key, blob)
local ttl = redis.call("PTTL", session_key)
if ttl > 0 then
  redis.call("PEXPIRE", records_key, ttl)
end
return 2
`

var appendRecordLua = redis.NewScript(appendRecordScript)

// snapshotScript returns session metadata and every record in one atomic
// step, so a read never interleaves with an append or purge.
const snapshotScript = `
local session_key = KEYS[1]
local records_key = KEYS[2]
local exp_key = KEYS[3]
local sid = ARGV[1]

if redis.call("EXISTS", session_key) == 0 then
  if redis.call("ZSCORE", exp_key, sid) then
    return {1}
  end
  return {0}
end

local meta = redis.call("GET", session_key)
local records = redis.call("LRANGE", records_key, 0, -1)
return {2, meta, records}
`

var snapshotLua = redis.NewScript(snapshotScript)

// purgeScript removes the session, its records, and its expiry index entry
// in one atomic step. Nothing survives a successful purge.
const purgeScript = `
local session_key = KEYS[1]
local records_key = KEYS[2]
local exp_key = KEYS[3]
local sid = ARGV[1]

local existed = redis.call("EXISTS", session_key)
redis.call("DEL", session_key, records_key)
redis.call("ZREM", exp_key, sid)
return existed
`

var purgeLua = redis.NewScript(purgeScript)

// renameScript moves a capture session under a new identifier while keeping
// its absolute deadline. The expiry index score is carried over untouched, so
// a rename never extends the session's lifetime.
const renameScript = `
local old_session = KEYS[1]
local old_records = KEYS[2]
local new_session = KEYS[3]
local new_records = KEYS[4]
local exp_key = KEYS[5]
local old_sid = ARGV[1]
local new_sid = ARGV[2]

if redis.call("EXISTS", old_session) == 0 then
  return 0
end

local score = redis.call("ZSCORE", exp_key, old_sid)
redis.call("RENAME", old_session, new_session)
if redis.call("EXISTS", old_records) == 1 then
  redis.call("RENAME", old_records, new_records)
end
redis.call("ZREM", exp_key, old_sid)
if score then
  redis.call("ZADD", exp_key, score, new_sid)
end
return 1
`

var renameLua = redis.NewScript(renameScript)

// Store is a Redis-backed capture store. Sensitive fields are sealed through
// the vault cipher before they reach Redis and opened only on read paths.
type Store struct {
	redis  redis.UniversalClient
	cipher *vault.Cipher
	prefix string
}

// NewStore creates a capture [Store] backed by the given Redis client and
// vault cipher. prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, cipher *vault.Cipher, prefix string) *Store {
	return &Store{
		redis:  redis,
		cipher: cipher,
		prefix: prefix,
	}
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) recordsKey(sessionID string) string {
	return s.prefix + ":r:" + sessionID
}

func (s *Store) expiryKey() string {
	return s.prefix + ":exp"
}

// CreateSession registers a capture session with a fixed absolute lifetime.
// The Redis key TTL is a padded backstop; the expiry index entry is what the
// sweep and every deadline check consume.
//
//	Performance: 2 Redis commands in one transaction.
func (s *Store) CreateSession(ctx context.Context, sessionID, operatorID string, now time.Time, ttl time.Duration) error {
	meta := &Meta{
		SessionID:  sessionID,
		OperatorID: operatorID,
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sessionID), data, ttl+keyBackstopSlack)
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(meta.ExpiresAt), Member: sessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Capture seals both fields under fresh nonces and appends the record to the
// session's list. Returns the new record identifier.
//
//	Performance: 2 Seal operations + 1 Lua EVALSHA.
func (s *Store) Capture(ctx context.Context, sessionID, phone, code string, now time.Time) (string, error) {
	phoneEnv, err := s.cipher.Seal([]byte(phone))
	if err != nil {
		return "", err
	}
	codeEnv, err := s.cipher.Seal([]byte(code))
	if err != nil {
		return "", err
	}

	rec := &record{
		RecordID:  uuid.NewString(),
		Phone:     phoneEnv,
		Code:      codeEnv,
		Status:    StatusPending,
		CreatedAt: now.Unix(),
	}
	blob, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}

	result, err := appendRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionID), s.recordsKey(sessionID), s.expiryKey()},
		sessionID,
		blob,
		now.Unix(),
	).Int64()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch result {
	case captureStatusNotFound:
		return "", ErrSessionNotFound
	case captureStatusExpired:
		return "", ErrSessionExpired
	case captureStatusOK:
		return rec.RecordID, nil
	default:
		return "", fmt.Errorf("%w: unknown append script status", ErrRedisUnavailable)
	}
}

// ReadActive returns the session metadata and the pending records, decrypted,
// from a single atomic snapshot. Every stored record is decrypt-verified —
// one bad envelope aborts the whole read — but records already marked sent
// are withheld from the result. The deadline is re-checked against now so a
// session the backstop TTL has not yet reaped still reads as expired.
//
//	Performance: 1 Lua EVALSHA + 2 Open operations per record.
func (s *Store) ReadActive(ctx context.Context, sessionID string, now time.Time) (*Meta, []Entry, error) {
	result, err := snapshotLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionID), s.recordsKey(sessionID), s.expiryKey()},
		sessionID,
	).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, nil, fmt.Errorf("%w: invalid snapshot script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, nil, fmt.Errorf("%w: invalid snapshot script status", ErrRedisUnavailable)
	}

	switch code {
	case captureStatusNotFound:
		return nil, nil, ErrSessionNotFound
	case captureStatusExpired:
		return nil, nil, ErrSessionExpired
	case captureStatusOK:
	default:
		return nil, nil, fmt.Errorf("%w: unknown snapshot script status", ErrRedisUnavailable)
	}

	if len(parts) < 3 {
		return nil, nil, fmt.Errorf("%w: missing snapshot payload", ErrRedisUnavailable)
	}

	metaBlob, err := luaBytes(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	meta, err := decodeMeta(metaBlob)
	if err != nil {
		return nil, nil, errors.Join(ErrRecordCorrupt, err)
	}
	meta.SessionID = sessionID

	if meta.ExpiresAt <= now.Unix() {
		return nil, nil, ErrSessionExpired
	}

	rawRecords, ok := parts[2].([]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("%w: invalid snapshot record list", ErrRedisUnavailable)
	}

	entries := make([]Entry, 0, len(rawRecords))
	for _, raw := range rawRecords {
		blob, err := luaBytes(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		rec, err := decodeRecord(blob)
		if err != nil {
			return nil, nil, errors.Join(ErrRecordCorrupt, err)
		}
		entry, err := s.openRecord(rec)
		if err != nil {
			return nil, nil, err
		}
		if entry.Status != StatusPending {
			continue
		}
		entries = append(entries, entry)
	}

	return meta, entries, nil
}

// MarkSent finds the pending record whose decrypted phone field equals phone
// and flips it to sent. The comparison happens against freshly opened
// plaintext, never against ciphertext. Optimistic CAS on the record list;
// retried up to maxCASRetries times.
//
//	Performance: WATCH + LRANGE + LSET per attempt.
func (s *Store) MarkSent(ctx context.Context, sessionID, phone string, now time.Time) (string, error) {
	recordsKey := s.recordsKey(sessionID)

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var recordID string

		txErr := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			meta, err := s.getMeta(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if meta.ExpiresAt <= now.Unix() {
				return ErrSessionExpired
			}

			blobs, err := tx.LRange(ctx, recordsKey, 0, -1).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}

			matchIndex := -1
			var updated []byte
			for i, blobStr := range blobs {
				rec, decErr := decodeRecord([]byte(blobStr))
				if decErr != nil {
					return errors.Join(ErrRecordCorrupt, decErr)
				}
				if rec.Status != StatusPending {
					continue
				}
				plain, openErr := s.cipher.Open(rec.Phone)
				if openErr != nil {
					return ErrIntegrity
				}
				if string(plain) != phone {
					continue
				}

				rec.Status = StatusSent
				updated, err = encodeRecord(rec)
				if err != nil {
					return err
				}
				matchIndex = i
				recordID = rec.RecordID
				break
			}

			if matchIndex < 0 {
				return ErrRecordNotFound
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LSet(ctx, recordsKey, int64(matchIndex), updated)
				return nil
			})
			if err != nil {
				return err
			}
			return nil
		}, recordsKey)

		if txErr == nil {
			return recordID, nil
		}
		if errors.Is(txErr, redis.TxFailedErr) {
			continue
		}
		return "", txErr
	}

	return "", ErrConcurrentUpdate
}

// EndSession purges the session, every record, and the expiry index entry in
// one atomic step. Idempotent: purging an absent session reports false.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) EndSession(ctx context.Context, sessionID string) (bool, error) {
	existed, err := purgeLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionID), s.recordsKey(sessionID), s.expiryKey()},
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// Rename re-keys a capture session and its records under a new identifier.
// The absolute deadline travels with the session. Reports false when no
// session exists under oldSessionID.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Rename(ctx context.Context, oldSessionID, newSessionID string) (bool, error) {
	moved, err := renameLua.Run(
		ctx,
		s.redis,
		[]string{
			s.sessionKey(oldSessionID),
			s.recordsKey(oldSessionID),
			s.sessionKey(newSessionID),
			s.recordsKey(newSessionID),
			s.expiryKey(),
		},
		oldSessionID,
		newSessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return moved == 1, nil
}

// Swept identifies one session removed by [Store.Sweep]. OperatorID is empty
// when the metadata could no longer be read before the purge.
type Swept struct {
	SessionID  string
	OperatorID string
}

// Sweep purges every capture session whose absolute deadline lies strictly
// before now. A session expiring exactly at now survives this pass. One
// timestamp drives the whole pass. Returns the removed sessions with their
// operator attribution.
func (s *Store) Sweep(ctx context.Context, now time.Time) ([]Swept, error) {
	expired, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed := make([]Swept, 0, len(expired))
	for _, sessionID := range expired {
		swept := Swept{SessionID: sessionID}
		if data, getErr := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes(); getErr == nil {
			if meta, decErr := decodeMeta(data); decErr == nil {
				swept.OperatorID = meta.OperatorID
			}
		}
		if _, err := s.EndSession(ctx, sessionID); err != nil {
			return removed, err
		}
		removed = append(removed, swept)
	}

	return removed, nil
}

// Exists reports whether a capture session is still registered, without
// reading or decrypting any records.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

func (s *Store) openRecord(rec *record) (Entry, error) {
	phone, err := s.cipher.Open(rec.Phone)
	if err != nil {
		return Entry{}, ErrIntegrity
	}
	code, err := s.cipher.Open(rec.Code)
	if err != nil {
		return Entry{}, ErrIntegrity
	}
	return Entry{
		RecordID:  rec.RecordID,
		Phone:     string(phone),
		Code:      string(code),
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *Store) getMeta(ctx context.Context, tx *redis.Tx, sessionID string) (*Meta, error) {
	data, err := tx.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	meta, err := decodeMeta(data)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	meta.SessionID = sessionID
	return meta, nil
}

func luaBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		return nil, errors.New("unexpected lua payload type")
	}
}
