// Package password implements credential secret hashing and verification with
// Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Credentials are provisioned out of band and never change after enrollment,
// so there is no parameter-upgrade path: the parameters embedded in a stored
// hash are the parameters used to verify it.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Lookup of stored hashes and
// the unknown-identity decoy comparison are enforced by the Engine's validator.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets — callers supply plaintext and receive hashes.
//   - Import any other captivault package.
//   - Log plaintext secrets or hash parameters at runtime.
package password
