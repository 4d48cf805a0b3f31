// Package admission enforces the per-operator concurrent session ceiling.
//
// The check-then-register step runs as a single Lua script, so two logins
// racing for the last slot can never both win: one registers, the other is
// denied. Registration is keyed by session identifier and survives rotation
// through an atomic rename.
//
// # Architecture boundaries
//
// This package owns slot accounting only. It does not create sessions, issue
// tokens, or decide what a denial means to the caller — the Engine does.
package admission
