// Package session provides a Redis-backed login session store that carries the
// pending second-factor flag.
//
// A [Binding] adapts one session to the identity and session-flag interfaces
// the verification flow consumes, so an application without its own session
// layer can drive goOTP end to end.
//
// # What this package must NOT do
//
//   - Import goOTP (no upward imports).
//   - Issue or verify codes.
//   - Store codes or other secrets in session fields.
package session
