// Package middleware gates HTTP handlers on the second-factor state of the
// caller's session.
//
// [Guard] lets a request through only when a user is signed in and no
// second factor is pending. [RequireVerified] answers with 401/403 for APIs;
// [RedirectUnverified] redirects browsers to the login or verify page.
//
// The package never reads or writes codes. It only consults the
// goOTP.IdentityProvider and goOTP.SessionFlags the caller resolves per request.
package middleware
