// Package session provides Redis-backed session persistence and compact binary
// session encoding for guard hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary format. The three lifecycle
// timestamps always occupy the final 24 bytes of the blob, which lets the
// store's Lua scripts touch activity and rotate identifiers by byte splicing
// without decoding the variable-length prefix.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does NOT interpret access tokens, apply the idle threshold, or decide when
// rotation is due — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import captivault, token, or capture (no upward imports).
//   - Perform application-level authentication decisions.
//   - Store plaintext captured data in [Session] fields.
package session
