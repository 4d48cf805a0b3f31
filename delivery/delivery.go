package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/captivault/captivault/vault"
)

// ErrRedisUnavailable is an exported constant or variable used by the session engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Sender delivers a message to a recipient. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

// LogSender is a [Sender] that writes to the process log instead of an
// external transport. Recipients are truncated in log output.
type LogSender struct{}

// Send implements [Sender].
func (LogSender) Send(_ context.Context, recipient, body string) error {
	log.Printf("delivery: send to %s (%d bytes)", redactRecipient(recipient), len(body))
	return nil
}

func redactRecipient(recipient string) string {
	if len(recipient) <= 4 {
		return "****"
	}
	return "****" + recipient[len(recipient)-4:]
}

// logEntry is the stored form of one delivery. The recipient is sealed; the
// body is never stored, only its length.
type logEntry struct {
	ID        string `json:"id"`
	SessionID string `json:"sid"`
	Nonce     []byte `json:"n"`
	Tag       []byte `json:"t"`
	Recipient []byte `json:"r"`
	BodyLen   int    `json:"bl"`
	SentAt    int64  `json:"at"`
}

// Entry is a decrypted delivery log entry.
type Entry struct {
	ID        string
	SessionID string
	Recipient string
	BodyLen   int
	SentAt    int64
}

// Log records deliveries in Redis with sealed recipients.
type Log struct {
	redis  redis.UniversalClient
	cipher *vault.Cipher
	prefix string
	ttl    time.Duration
}

// NewLog creates a delivery [Log]. prefix sets the Redis key namespace; ttl
// bounds how long entries are retained per session.
func NewLog(redis redis.UniversalClient, cipher *vault.Cipher, prefix string, ttl time.Duration) *Log {
	return &Log{
		redis:  redis,
		cipher: cipher,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (l *Log) key(sessionID string) string {
	return l.prefix + ":" + sessionID
}

// Record appends a delivery entry for a session. Returns the entry ID.
func (l *Log) Record(ctx context.Context, sessionID, recipient string, bodyLen int, now time.Time) (string, error) {
	env, err := l.cipher.Seal([]byte(recipient))
	if err != nil {
		return "", err
	}

	entry := logEntry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Nonce:     env.Nonce,
		Tag:       env.Tag,
		Recipient: env.Ciphertext,
		BodyLen:   bodyLen,
		SentAt:    now.Unix(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}

	key := l.key(sessionID)
	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if l.ttl > 0 {
			pipe.PExpire(ctx, key, l.ttl)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return entry.ID, nil
}

// Entries returns the decrypted delivery log for a session.
func (l *Log) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	raw, err := l.redis.LRange(ctx, l.key(sessionID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var stored logEntry
		if err := json.Unmarshal([]byte(item), &stored); err != nil {
			return nil, err
		}
		plain, err := l.cipher.Open(vault.Envelope{
			Nonce:      stored.Nonce,
			Tag:        stored.Tag,
			Ciphertext: stored.Recipient,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			ID:        stored.ID,
			SessionID: stored.SessionID,
			Recipient: string(plain),
			BodyLen:   stored.BodyLen,
			SentAt:    stored.SentAt,
		})
	}

	return entries, nil
}

// Rename re-keys a session's delivery log under a new identifier, keeping the
// remaining TTL. A session with no deliveries yet has no key to move; that is
// not an error.
func (l *Log) Rename(ctx context.Context, oldSessionID, newSessionID string) error {
	moved, err := l.redis.RenameNX(ctx, l.key(oldSessionID), l.key(newSessionID)).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !moved {
		return fmt.Errorf("%w: delivery log rename target exists", ErrRedisUnavailable)
	}
	return nil
}

// Purge removes the delivery log for a session.
func (l *Log) Purge(ctx context.Context, sessionID string) error {
	if err := l.redis.Del(ctx, l.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
