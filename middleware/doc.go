// Package middleware exposes an HTTP middleware adapter for session
// enforcement built on top of captivault.Engine.Guard.
//
// # Guards
//
//   - [Guard] — validates the bearer token, surfaces rotated tokens through
//     the [RotatedTokenHeader] response header, and injects the guard result
//     into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement session logic itself — all decisions are delegated to
// Engine.Guard.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Guard.
package middleware
