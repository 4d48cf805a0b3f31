// Package token manages access-token issuance and verification using configured
// signing keys and strict validation semantics suitable for low-latency guard paths.
//
// A token binds an operator identity (uid) to a server-side session identifier
// (sid). The token's own expiry is a coarse backstop; session liveness is always
// decided server-side against the session store.
package token
