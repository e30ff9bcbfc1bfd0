package middleware

import (
	"context"
	"net/http"
	"strings"

	goOTP "github.com/MrEthical07/goOTP"
)

type userIDContextKey struct{}

// UserIDFromContext returns the user ID a [Guard] admitted.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	return id, ok && id != ""
}

// SessionResolver returns the identity and session collaborators bound to r.
type SessionResolver func(r *http.Request) (goOTP.IdentityProvider, goOTP.SessionFlags)

// Options configures a [Guard].
type Options struct {
	// Exempt paths pass through untouched. A trailing "/" matches the prefix.
	Exempt []string
	// LoginURL, when set, redirects unauthenticated requests instead of 401.
	LoginURL string
	// VerifyURL, when set, redirects pending sessions instead of 403.
	VerifyURL string
}

// Guard admits a request only when its session has a user and no pending
// second factor. Anonymous requests get 401 (or LoginURL), pending sessions
// get 403 (or VerifyURL) and collaborator failures get 500. Admitted requests
// carry the user ID, readable with [UserIDFromContext].
func Guard(resolve SessionResolver, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path, opts.Exempt) {
				next.ServeHTTP(w, r)
				return
			}
			if resolve == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identity, sessions := resolve(r)
			if identity == nil || sessions == nil {
				deny(w, r, opts.LoginURL, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := identity.CurrentUserID(r.Context())
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if userID == "" {
				deny(w, r, opts.LoginURL, http.StatusUnauthorized, "unauthorized")
				return
			}

			pending, err := sessions.PendingSecondFactor(r.Context())
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if pending {
				deny(w, r, opts.VerifyURL, http.StatusForbidden, "verification required")
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, target string, status int, msg string) {
	if target != "" {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	http.Error(w, msg, status)
}

func exempt(path string, list []string) bool {
	for _, p := range list {
		if p == path {
			return true
		}
		if strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
