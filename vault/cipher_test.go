package vault

import (
	"bytes"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	plaintext := []byte("+15550100")

	env, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := c.Open(env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	c := newTestCipher(t)
	plaintext := []byte("secret")

	a, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Fatal("two Seal calls reused a nonce")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatal("two Seal calls produced identical ciphertext")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	c := newTestCipher(t)
	env, err := c.Seal([]byte("123456"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(Envelope) Envelope
	}{
		{"ciphertext bit flip", func(e Envelope) Envelope {
			ct := append([]byte(nil), e.Ciphertext...)
			ct[0] ^= 0x01
			e.Ciphertext = ct
			return e
		}},
		{"tag bit flip", func(e Envelope) Envelope {
			tag := append([]byte(nil), e.Tag...)
			tag[0] ^= 0x01
			e.Tag = tag
			return e
		}},
		{"nonce bit flip", func(e Envelope) Envelope {
			n := append([]byte(nil), e.Nonce...)
			n[0] ^= 0x01
			e.Nonce = n
			return e
		}},
		{"truncated tag", func(e Envelope) Envelope {
			e.Tag = e.Tag[:8]
			return e
		}},
		{"empty nonce", func(e Envelope) Envelope {
			e.Nonce = nil
			return e
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Open(tc.mutate(env)); err != ErrIntegrity {
				t.Fatalf("got %v, want ErrIntegrity", err)
			}
		})
	}
}

func TestOpenWrongKey(t *testing.T) {
	a := newTestCipher(t)
	b := newTestCipher(t)

	env, err := a.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := b.Open(env); err != ErrIntegrity {
		t.Fatalf("got %v, want ErrIntegrity", err)
	}
}

func TestNewRejectsBadKey(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := New(make([]byte, n)); err != ErrInvalidKey {
			t.Fatalf("key len %d: got %v, want ErrInvalidKey", n, err)
		}
	}
}
