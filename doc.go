// Package captivault provides a Redis-backed session engine for capture
// workflows: credential-gated logins, idle-expiring sessions with periodic
// identifier rotation, encrypted-at-rest capture records with a fixed
// absolute lifetime, and per-operator concurrent session admission.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// captivault is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, GuardResult, MetricsSnapshot, etc.). Session
// encoding, envelope encryption, admission bookkeeping, and capture storage
// live in sub-packages and are wired together only here.
//
// # What this package must NOT do
//
//   - Expose plaintext captured fields outside of read operations; fields are
//     sealed before they reach Redis and opened only on demand.
//   - Extend a capture session's absolute deadline for any reason.
//   - Let a session survive a failed identifier rotation.
//
// # Performance contract
//
// Guard is the hot path. It costs one Redis round-trip when no rotation is
// due. Login, Capture, and SendMessage are allowed a handful of round-trips
// per call; the sweep runs off the request path entirely.
package captivault
