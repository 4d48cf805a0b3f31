// Package internal contains helper utilities that are intentionally private to
// captivault, currently secure session identifier generation.
//
// # What this package must NOT do
//
//   - Export types that appear in the public captivault API.
//   - Be imported by any package outside the captivault module.
package internal
