package auth

import (
	"net/http"
	"time"
)

// Flow cookies hold the CSRF state and PKCE verifier for one login attempt.
const (
	StateCookieName    = "x-app-state"
	VerifierCookieName = "x-app-code-verifier"
	FlowCookieMaxAge   = 5 * time.Minute
)

// FlowCookie builds a short-lived, HttpOnly cookie for one login attempt.
//
// SameSite=Lax is required here, not Strict: the provider redirects the
// browser back to /callback as a top-level cross-site navigation, and Strict
// cookies would not be sent with it.
func FlowCookie(name, value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(FlowCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearFlowCookies returns the directives that delete both flow cookies.
func ClearFlowCookies(secure bool) []*http.Cookie {
	return []*http.Cookie{
		expiredCookie(StateCookieName, secure),
		expiredCookie(VerifierCookieName, secure),
	}
}

// expiredCookie deletes name on the client. MaxAge < 0 is sent as Max-Age=0.
func expiredCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
