package internal

import "testing"

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}

	encoded := sid.String()
	if len(encoded) != 22 {
		t.Fatalf("expected 22-character identifier, got %d", len(encoded))
	}

	parsed, err := ParseSessionID(encoded)
	if err != nil {
		t.Fatalf("ParseSessionID failed: %v", err)
	}
	if parsed != sid {
		t.Fatal("expected round-trip to preserve identifier")
	}
}

func TestSessionIDUniqueness(t *testing.T) {
	seen := make(map[SessionID]bool, 1000)
	for i := 0; i < 1000; i++ {
		sid, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		if seen[sid] {
			t.Fatal("duplicate session identifier generated")
		}
		seen[sid] = true
	}
}

func TestParseSessionIDRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "!!!", "dG9vc2hvcnQ", "dGhpcy1pcy13YXktdG9vLWxvbmctZm9yLWEtc2Vzc2lvbi1pZA"} {
		if _, err := ParseSessionID(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}
