// Package capture implements the encrypted-at-rest store for data captured
// during an operator session.
//
// Captured fields never touch Redis in the clear: each field is sealed
// individually through the vault cipher before encoding, and decrypted only
// inside read paths. Records hang off a per-session list with a hard
// absolute lifetime; an expiry index drives the background sweep.
//
// # Binary encoding
//
// Session metadata and records are stored as compact binary blobs in the
// same style as the session package. Envelopes embed their nonce and tag,
// so every stored field is independently authenticated.
//
// # Architecture boundaries
//
// This package owns capture persistence, field encryption at the storage
// boundary, and expiry bookkeeping. Session liveness policy and audit
// emission belong to the Engine.
//
// # What this package must NOT do
//
//   - Log or return plaintext outside the documented read paths.
//   - Import captivault or session (no upward imports).
package capture
