package middleware

import "net/http"

// RedirectUnverified returns a [Guard] for browser routes. The login and
// verify pages themselves are always exempt.
func RedirectUnverified(resolve SessionResolver, loginURL, verifyURL string, exemptPaths ...string) func(http.Handler) http.Handler {
	exemptAll := append([]string{loginURL, verifyURL}, exemptPaths...)
	return Guard(resolve, Options{
		Exempt:    exemptAll,
		LoginURL:  loginURL,
		VerifyURL: verifyURL,
	})
}
