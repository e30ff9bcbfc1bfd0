// Package internal holds code generation helpers private to goOTP.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: issue, verify and second-factor orchestration behind Engine
//   - limiters: generation throttle and verification failure budget
//   - rate: Redis fixed-window counter and check-and-set primitives
//   - security: brute-force posture of a configuration
//
// # What this package must NOT do
//
//   - Export types that appear in the public goOTP API.
//   - Be imported by any package outside the goOTP module.
package internal
