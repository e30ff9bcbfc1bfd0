// Package goOTP provides a one-time-password second-factor engine: it issues
// short numeric codes over email or SMS, verifies them exactly once, throttles
// issuance, rate-limits failed submissions, and drives the post-login
// verification flow of a session.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goOTP is the public surface. It exposes [Engine], [VerificationFlow], [Builder],
// [Config], and value types (SubmitResult, MetricsSnapshot, etc.). Flow orchestration,
// limiter policy, and audit dispatch live under internal/ and are never exported.
// Persistence is pluggable through [RecordStore]: record.Store (Redis),
// store/postgres, and store/memory.
//
// # What this package must NOT do
//
//   - Render codes, route HTTP requests, or own the user session.
//   - Log or audit plaintext codes.
//   - Import any sub-package that re-imports goOTP (no import cycles).
//
// # Consistency contract
//
// A code is consumed by one atomic conditional update in the store, the
// generation throttle is a single check-and-set, and the failure counter is a
// single increment. Two concurrent submissions of the same code never both
// succeed.
package goOTP
