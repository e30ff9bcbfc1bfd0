// Package limiters provides the domain-specific limiters for second-factor codes.
//
// # Limiters
//
//   - [GenerationThrottle]: one issuance per (user, channel) per window, atomic SET NX.
//   - [VerificationLimiter]: per-user failed-submission budget over a fixed window.
//
// All limiters are nil-safe: calling any method on a nil receiver is a no-op that
// never limits.
//
// # Architecture boundaries
//
// Each limiter owns its own key namespace and error types. Policy thresholds come
// from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goOTP or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
