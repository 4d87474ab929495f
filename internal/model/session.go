package model

import "time"

// Session is everything we know about a signed-in browser.
//
// It lives only inside the signed session cookie; there is no server-side
// copy. ExpiresAt is the access token's expiry in Unix seconds and is
// advisory: requests are not rejected when it has passed.
type Session struct {
	ID           string // per-login identifier for log correlation
	AccessToken  string
	RefreshToken string // empty when the provider did not issue one
	Scope        string
	ExpiresAt    int64
	User         User
}

// Expired reports whether the access token expiry has passed at now.
// A zero ExpiresAt means unknown and is never expired.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != 0 && now.Unix() >= s.ExpiresAt
}
