package password

import (
	"strings"
	"testing"
)

func secureConfig() Config {
	return Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected secret verification to succeed")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("correct-secret")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := hasher.Verify("wrong-secret!", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong secret verification to fail")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if _, err := hasher.Verify("some-secret", "not-a-phc-hash"); err == nil {
		t.Fatal("expected malformed hash verification to fail")
	}
}

func TestVerifyWrongVersion(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	wrongVersion := strings.Replace(hash, "$v=19$", "$v=18$", 1)
	if _, err := hasher.Verify("version-test", wrongVersion); err == nil {
		t.Fatal("expected unsupported version verification to fail")
	}
}

func TestHashEmptySecret(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if _, err := hasher.Hash(""); err == nil {
		t.Fatal("expected empty secret hash to fail")
	}
}

func TestHashTooShortSecret(t *testing.T) {
	hasher, err := NewHasher(secureConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if _, err := hasher.Hash("short"); err == nil {
		t.Fatal("expected short secret hash to fail")
	}
}

func TestHashTooLongSecretRejected(t *testing.T) {
	cfg := secureConfig()
	cfg.MaxSecretBytes = 64
	hasher, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	longSecret := strings.Repeat("a", 65)
	if _, err := hasher.Hash(longSecret); err == nil {
		t.Fatal("expected long secret to be rejected by Hash()")
	}
}

func TestHashAtMaxLengthAccepted(t *testing.T) {
	cfg := secureConfig()
	cfg.MaxSecretBytes = 64
	hasher, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	exactSecret := strings.Repeat("b", 64)
	hash, err := hasher.Hash(exactSecret)
	if err != nil {
		t.Fatalf("expected exactly-max secret to be accepted: %v", err)
	}

	ok, err := hasher.Verify(exactSecret, hash)
	if err != nil || !ok {
		t.Fatalf("Verify failed for max-length secret: ok=%v err=%v", ok, err)
	}
}

func TestVerifyTooLongSecretRejected(t *testing.T) {
	cfg := secureConfig()
	cfg.MaxSecretBytes = 64
	hasher, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("valid-secret-123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	// Verify with an overly long secret should fail fast.
	longSecret := strings.Repeat("c", 65)
	if _, err := hasher.Verify(longSecret, hash); err == nil {
		t.Fatal("expected long secret to be rejected by Verify()")
	}
}

func TestDefaultMaxSecretBytesApplied(t *testing.T) {
	cfg := secureConfig()
	// MaxSecretBytes left as zero — should use DefaultMaxSecretBytes (1024).
	hasher, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	longSecret := strings.Repeat("d", DefaultMaxSecretBytes+1)
	if _, err := hasher.Hash(longSecret); err == nil {
		t.Fatalf("expected secret > %d bytes to be rejected", DefaultMaxSecretBytes)
	}

	exactSecret := strings.Repeat("e", DefaultMaxSecretBytes)
	if _, err := hasher.Hash(exactSecret); err != nil {
		t.Fatalf("expected secret of exactly %d bytes to be accepted: %v", DefaultMaxSecretBytes, err)
	}
}
