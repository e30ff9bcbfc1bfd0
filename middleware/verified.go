package middleware

import "net/http"

// RequireVerified returns a [Guard] that answers 401 without a user and 403
// while a second factor is pending.
func RequireVerified(resolve SessionResolver) func(http.Handler) http.Handler {
	return Guard(resolve, Options{})
}
