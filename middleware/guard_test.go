package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	captivault "github.com/captivault/captivault"
	"github.com/captivault/captivault/password"
)

type staticProvider struct {
	record captivault.OperatorRecord
}

func (p staticProvider) GetOperatorByIdentifier(_ context.Context, identifier string) (captivault.OperatorRecord, error) {
	if identifier != p.record.Identifier {
		return captivault.OperatorRecord{}, context.Canceled
	}
	return p.record, nil
}

func newGuardTestEngine(t *testing.T) (*captivault.Engine, string, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := captivault.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Vault.AllowEphemeralKey = true
	cfg.Secret.Memory = 8192
	cfg.Secret.Time = 1
	cfg.Secret.Parallelism = 1
	cfg.Capture.SweepEnabled = false

	secret := "correct-horse-battery"
	hash := hashSecret(t, cfg, secret)

	engine, err := captivault.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentials(staticProvider{record: captivault.OperatorRecord{
			OperatorID: "op-1",
			Identifier: "alice",
			SecretHash: hash,
			Role:       "operator",
		}}).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	login, err := engine.Login(context.Background(), "alice", secret)
	if err != nil {
		mr.Close()
		t.Fatalf("Login failed: %v", err)
	}

	return engine, login.AccessToken, func() {
		engine.Close()
		mr.Close()
	}
}

func TestGuardMiddlewareAllowsValidToken(t *testing.T) {
	engine, token, done := newGuardTestEngine(t)
	defer done()

	var seen *captivault.GuardResult
	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := GuardResultFromContext(r.Context())
		if !ok {
			t.Fatal("expected guard result in context")
		}
		seen = res
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen == nil || seen.OperatorID != "op-1" {
		t.Fatalf("unexpected guard result: %+v", seen)
	}
	if rec.Header().Get(RotatedTokenHeader) != "" {
		t.Fatal("expected no rotation header on a fresh session")
	}
}

func TestGuardMiddlewareRejectsMissingOrBadToken(t *testing.T) {
	engine, _, done := newGuardTestEngine(t)
	defer done()

	handler := Guard(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a valid token")
	}))

	for _, auth := range []string{"", "Bearer ", "Bearer garbage", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("auth %q: expected 401, got %d", auth, rec.Code)
		}
	}
}

func TestGuardMiddlewareNilEngine(t *testing.T) {
	handler := Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without an engine")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// hashSecret hashes with the same parameters the engine verifies with.
func hashSecret(t *testing.T, cfg captivault.Config, secret string) string {
	t.Helper()

	h, err := password.NewHasher(password.Config{
		Memory:      cfg.Secret.Memory,
		Time:        cfg.Secret.Time,
		Parallelism: cfg.Secret.Parallelism,
		SaltLength:  cfg.Secret.SaltLength,
		KeyLength:   cfg.Secret.KeyLength,
	})
	if err != nil {
		t.Fatalf("hasher init failed: %v", err)
	}
	out, err := h.Hash(secret)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return out
}
