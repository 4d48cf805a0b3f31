// Package vault implements the field-level encryption primitive used by the
// capture store.
//
// Every sensitive field is sealed independently with AES-256-GCM under a
// single process-wide key. Each Seal call draws a fresh random nonce, so
// encrypting the same plaintext twice never yields the same envelope. The
// authentication tag is kept as a distinct envelope field; tampering with
// nonce, tag, or ciphertext makes Open fail with ErrIntegrity.
//
// # What this package must NOT do
//
//   - No key rotation or key derivation. The key is supplied by the caller.
//   - No storage. Envelopes are value types; persistence is the caller's job.
package vault
