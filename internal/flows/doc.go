// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunVerify, RunSubmit, etc.) accepts a typed
// dependency struct and returns results without side-effects beyond those
// dependencies. The Engine builds the dependency structs and stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the record store, generation throttle,
// verification limiter, notifier, session collaborators, audit dispatcher, and
// metrics. They do NOT own any of these resources; the Engine owns them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goOTP (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through dependency funcs.
package flows
