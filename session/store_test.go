package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "cvs")
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession() *Session {
	now := time.Now()
	return &Session{
		SessionID:     "sid-1",
		OperatorID:    "op-1",
		Role:          "operator",
		CreatedAt:     now.Unix(),
		LastActivity:  now.Unix(),
		LastRotatedAt: now.Unix(),
	}
}

func TestDeleteSessionIdempotentCounterAndIndex(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Delete(ctx, sess.SessionID, sess.OperatorID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, sess.SessionID, sess.OperatorID); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	count, err := store.TotalSessionCount(ctx)
	if err != nil {
		t.Fatalf("total count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected total count 0, got %d", count)
	}

	operatorSet := store.operatorKey(sess.OperatorID)
	members, err := rdb.SMembers(ctx, operatorSet).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no operator index members, got %v", members)
	}
}

func TestRotateSentinelErrors(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	// Not found.
	_, err := store.Rotate(ctx, "missing", "sid-next", "op-1", time.Now(), time.Hour)
	if !errors.Is(err, redis.Nil) || !errors.Is(err, ErrRotateSessionNotFound) {
		t.Fatalf("expected not-found sentinel, got %v", err)
	}

	// Corrupt blob.
	if err := rdb.Set(ctx, store.key("sid-corrupt"), []byte("bad"), time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt blob failed: %v", err)
	}
	_, err = store.Rotate(ctx, "sid-corrupt", "sid-next", "op-1", time.Now(), time.Hour)
	if !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("expected corrupt sentinel, got %v", err)
	}
}

func TestRotateSwapsIdentifierAtomically(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	now := time.Now().Add(16 * time.Minute)
	rotated, err := store.Rotate(ctx, sess.SessionID, "sid-2", sess.OperatorID, now, time.Hour)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.SessionID != "sid-2" {
		t.Fatalf("rotated session ID = %q, want sid-2", rotated.SessionID)
	}
	if rotated.OperatorID != sess.OperatorID || rotated.Role != sess.Role {
		t.Fatalf("rotation altered payload: %+v", rotated)
	}
	if rotated.LastRotatedAt != now.Unix() || rotated.LastActivity != now.Unix() {
		t.Fatalf("rotation did not refresh timestamps: %+v", rotated)
	}
	if rotated.CreatedAt != sess.CreatedAt {
		t.Fatalf("rotation altered creation time: got %d want %d", rotated.CreatedAt, sess.CreatedAt)
	}

	// Old identifier must be fully gone.
	if _, err := store.Get(ctx, sess.SessionID); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected old identifier to be gone, got %v", err)
	}
	got, err := store.Get(ctx, "sid-2")
	if err != nil {
		t.Fatalf("get rotated session: %v", err)
	}
	if got.OperatorID != sess.OperatorID {
		t.Fatalf("rotated session operator = %q", got.OperatorID)
	}

	members, err := rdb.SMembers(ctx, store.operatorKey(sess.OperatorID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 1 || members[0] != "sid-2" {
		t.Fatalf("operator index not swapped: %v", members)
	}
}

func TestTouchUpdatesLastActivityOnly(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	later := time.Now().Add(5 * time.Minute)
	if err := store.Touch(ctx, sess.SessionID, later, time.Hour); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := store.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastActivity != later.Unix() {
		t.Fatalf("last activity = %d, want %d", got.LastActivity, later.Unix())
	}
	if got.LastRotatedAt != sess.LastRotatedAt {
		t.Fatalf("touch must not change last rotated: got %d want %d", got.LastRotatedAt, sess.LastRotatedAt)
	}
	if got.CreatedAt != sess.CreatedAt {
		t.Fatalf("touch must not change created: got %d want %d", got.CreatedAt, sess.CreatedAt)
	}
}

func TestTouchMissingSession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()

	err := store.Touch(context.Background(), "missing", time.Now(), time.Hour)
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}
