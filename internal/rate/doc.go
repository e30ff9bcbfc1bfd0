// Package rate provides the Redis-backed keyed counter primitive used to build
// attempt limits for second-factor workflows.
//
// # Window semantics
//
// Fixed-window counters: INCR + PEXPIRE on the first hit, executed as one Lua
// script so the window cannot be left without a TTL. The window is anchored at
// the first hit and is not extended by later hits.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goOTP module.
package rate
