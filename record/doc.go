// Package record provides the one-time-password record model and its Redis-backed
// durable store.
//
// # Storage layout
//
// Records for one (user, channel) pair live in a single Redis hash keyed
// "{prefix}:{userID}:{channel}". The user ID is wrapped in a hash tag so every
// channel of a user lands on the same cluster slot. Each field is a record ID; each
// value is "code|createdMs|expiresMs|verifiedMs" where verifiedMs is 0 while the
// record is unconsumed.
//
// Every mutation (insert, supersede, consume, sweep) is a single Lua script, so a
// code is consumed at most once even under concurrent submissions.
//
// # What this package must NOT do
//
//   - Import goOTP or any internal package (no upward imports).
//   - Decide throttling, rate limiting, or delivery policy.
package record
