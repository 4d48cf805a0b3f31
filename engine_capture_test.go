package captivault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/captivault/captivault/capture"
)

type recordingSender struct {
	mu      sync.Mutex
	sendErr error

	recipients []string
	bodies     []string
}

func (s *recordingSender) Send(_ context.Context, recipient, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.recipients = append(s.recipients, recipient)
	s.bodies = append(s.bodies, body)
	return nil
}

func newCaptureTestEngine(t *testing.T, cfg Config, sender *recordingSender) (*Engine, *redis.Client, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentials(newTestProvider(t, newTestHasher(t))).
		WithSender(sender).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	return engine, rdb, func() {
		engine.Close()
		mr.Close()
	}
}

func TestCaptureAndReadRoundtrip(t *testing.T) {
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	first, err := engine.Capture(ctx, login.AccessToken, "+15551230001", "482913")
	if err != nil {
		t.Fatalf("first Capture failed: %v", err)
	}
	second, err := engine.Capture(ctx, login.AccessToken, "+15551230002", "118222")
	if err != nil {
		t.Fatalf("second Capture failed: %v", err)
	}
	if first.RecordID == second.RecordID {
		t.Fatal("expected distinct record identifiers")
	}

	records, err := engine.ReadActive(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("ReadActive failed: %v", err)
	}
	if len(records.Entries) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records.Entries))
	}
	if records.Entries[0].Phone != "+15551230001" || records.Entries[0].Code != "482913" {
		t.Fatalf("unexpected first record: %+v", records.Entries[0])
	}
	if records.Entries[0].Status != capture.StatusPending {
		t.Fatalf("expected pending status, got %d", records.Entries[0].Status)
	}
	if records.Meta.OperatorID != "op-1" {
		t.Fatalf("unexpected meta operator %q", records.Meta.OperatorID)
	}
}

func TestCaptureStoresOnlySealedValues(t *testing.T) {
	engine, rdb, done := newCaptureTestEngine(t, newTestConfig(), &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	phone := "+15559876543"
	code := "904411"
	if _, err := engine.Capture(ctx, login.AccessToken, phone, code); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	blobs, err := rdb.LRange(ctx, "cv:r:"+login.SessionID, 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange failed: %v", err)
	}
	if len(blobs) != 1 {
		t.Fatalf("expected 1 stored blob, got %d", len(blobs))
	}
	for _, blob := range blobs {
		if stringContains(blob, phone) || stringContains(blob, code) {
			t.Fatal("plaintext value found in stored record")
		}
	}
}

func TestCaptureValidatesInputs(t *testing.T) {
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.Capture(ctx, login.AccessToken, "", "482913"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for empty phone, got %v", err)
	}
	if _, err := engine.Capture(ctx, login.AccessToken, "+15551230001", ""); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for empty code, got %v", err)
	}
}

func TestSendMessageMarksRecordSent(t *testing.T) {
	sender := &recordingSender{}
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), sender)
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	capResult, err := engine.Capture(ctx, login.AccessToken, "+15551230001", "482913")
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	sendResult, err := engine.SendMessage(ctx, login.AccessToken, "+15551230001", "your code is ready")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if sendResult.RecordID != capResult.RecordID {
		t.Fatalf("expected record %q marked, got %q", capResult.RecordID, sendResult.RecordID)
	}
	if sendResult.DeliveryID == "" {
		t.Fatal("expected a delivery log entry id")
	}

	if len(sender.recipients) != 1 || sender.recipients[0] != "+15551230001" {
		t.Fatalf("unexpected sender recipients: %v", sender.recipients)
	}

	// The sent record is no longer part of the active set.
	records, err := engine.ReadActive(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("ReadActive failed: %v", err)
	}
	if len(records.Entries) != 0 {
		t.Fatalf("expected no active records after send, got %d", len(records.Entries))
	}

	entries, err := engine.DeliveryEntries(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("DeliveryEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 delivery entry, got %d", len(entries))
	}
	if entries[0].Recipient != "+15551230001" {
		t.Fatalf("unexpected delivery recipient %q", entries[0].Recipient)
	}
	if entries[0].BodyLen != len("your code is ready") {
		t.Fatalf("unexpected body length %d", entries[0].BodyLen)
	}
}

func TestSendMessageUnknownPhone(t *testing.T) {
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Capture(ctx, login.AccessToken, "+15551230001", "482913"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	_, err = engine.SendMessage(ctx, login.AccessToken, "+15550000000", "hello")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestSendMessageAlreadySent(t *testing.T) {
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Capture(ctx, login.AccessToken, "+15551230001", "482913"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := engine.SendMessage(ctx, login.AccessToken, "+15551230001", "first"); err != nil {
		t.Fatalf("first SendMessage failed: %v", err)
	}

	// A record only transitions pending -> sent once.
	_, err = engine.SendMessage(ctx, login.AccessToken, "+15551230001", "second")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for already-sent record, got %v", err)
	}
}

func TestSendMessageSenderFailure(t *testing.T) {
	sender := &recordingSender{sendErr: errors.New("gateway timeout")}
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), sender)
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Capture(ctx, login.AccessToken, "+15551230001", "482913"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	_, err = engine.SendMessage(ctx, login.AccessToken, "+15551230001", "hello")
	if err == nil || !stringContains(err.Error(), "gateway timeout") {
		t.Fatalf("expected sender error surfaced, got %v", err)
	}

	// Transport failure never rolls the mark back; no delivery entry is
	// written for a message that did not leave.
	entries, err := engine.DeliveryEntries(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("DeliveryEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no delivery entries, got %d", len(entries))
	}
}

func TestCaptureSessionExpiredTearsDownAuth(t *testing.T) {
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Rewrite the capture session with a deadline already in the past.
	backdated := time.Now().Add(-2 * engine.config.Capture.SessionTTL)
	if err := engine.captureStore.CreateSession(ctx, login.SessionID, "op-1", backdated, engine.config.Capture.SessionTTL); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	_, err = engine.Capture(ctx, login.AccessToken, "+15551230001", "482913")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// The authenticated session shares the capture session's lifetime.
	if _, err := engine.Guard(ctx, login.AccessToken); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired after capture expiry, got %v", err)
	}
}

func TestReadActiveExpiredSession(t *testing.T) {
	engine, _, done := newCaptureTestEngine(t, newTestConfig(), &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	backdated := time.Now().Add(-2 * engine.config.Capture.SessionTTL)
	if err := engine.captureStore.CreateSession(ctx, login.SessionID, "op-1", backdated, engine.config.Capture.SessionTTL); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	_, err = engine.ReadActive(ctx, login.AccessToken)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestIntegrityFailureSurfacesAndCounts(t *testing.T) {
	cfg := newTestConfig()
	cfg.Metrics.Enabled = true

	engine, rdb, done := newCaptureTestEngine(t, cfg, &recordingSender{})
	defer done()

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Capture(ctx, login.AccessToken, "+15551230001", "482913"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	// Flip the final ciphertext byte of the stored blob.
	key := "cv:r:" + login.SessionID
	blob, err := rdb.LIndex(ctx, key, 0).Result()
	if err != nil {
		t.Fatalf("LIndex failed: %v", err)
	}
	tampered := []byte(blob)
	tampered[len(tampered)-1] ^= 0xFF
	if err := rdb.LSet(ctx, key, 0, tampered).Err(); err != nil {
		t.Fatalf("LSet failed: %v", err)
	}

	_, err = engine.ReadActive(ctx, login.AccessToken)
	if !errors.Is(err, ErrIntegrityFailure) {
		t.Fatalf("expected ErrIntegrityFailure, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricIntegrityFailure] != 1 {
		t.Fatalf("integrity failure counter = %d, want 1", snap.Counters[MetricIntegrityFailure])
	}
}
