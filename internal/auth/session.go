// Package auth implements the login side of the server: PKCE, the OAuth2
// authorization-code flow against the provider, and the signed session cookie.
//
// SESSION STORAGE:
// There is no server-side session store. The whole Session record is carried
// in one HttpOnly cookie as an HS256-signed JWT, so any instance holding the
// same SESSION_SECRET can read it and nothing needs to be shared between
// instances.
//
//	HEADER.PAYLOAD.SIGNATURE
//	payload: {"iss":"mutual-radar","sub":<user id>,"jti":<session id>,
//	          "exp":<cookie expiry>,"at":<access token>,"user":{...},...}
//
// The cookie is signed, not encrypted. It never leaves the browser except
// back to us (HttpOnly, SameSite=Lax), the same exposure the access token
// has anyway.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/sakif/mutual-radar/internal/model"
)

const (
	// SessionCookieName is the cookie holding the signed session.
	SessionCookieName = "x-app-session"
	// SessionMaxAge is both the cookie Max-Age and the JWT lifetime.
	SessionMaxAge = 8 * time.Hour

	sessionIssuer = "mutual-radar"
	minSecretLen  = 32
)

// SessionCodec turns a Session into a cookie and back.
type SessionCodec struct {
	key    []byte
	secure bool
	now    func() time.Time
}

// NewSessionCodec derives the signing key from secret and returns a codec.
// secure sets the cookie Secure flag and should be true in production.
//
// The HMAC key is not the raw secret: HKDF-SHA256 stretches it under a
// purpose label, so the same SESSION_SECRET can never produce a signature
// valid for some other use.
func NewSessionCodec(secret string, secure bool) (*SessionCodec, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: session secret must be at least %d characters", minSecretLen)
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("mutual-radar session cookie v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("auth: deriving session key: %w", err)
	}

	return &SessionCodec{key: key, secure: secure, now: time.Now}, nil
}

// sessionClaims is the JWT payload. Short field names keep the cookie small.
type sessionClaims struct {
	jwt.RegisteredClaims
	AccessToken  string     `json:"at"`
	RefreshToken string     `json:"rt,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	TokenExpiry  int64      `json:"texp,omitempty"`
	User         model.User `json:"user"`
}

// Encode signs s and returns the session cookie to set on the response.
func (c *SessionCodec) Encode(s *model.Session) (*http.Cookie, error) {
	if s == nil || s.AccessToken == "" || s.User.ID == "" {
		return nil, errors.New("auth: session needs an access token and a user ID")
	}

	now := c.now()
	expires := now.Add(SessionMaxAge)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   s.User.ID,
			ID:        s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Scope:        s.Scope,
		TokenExpiry:  s.ExpiresAt,
		User:         s.User,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return nil, fmt.Errorf("auth: signing session: %w", err)
	}

	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(SessionMaxAge.Seconds()),
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Decode verifies a cookie value and rebuilds the Session. Anything that does
// not verify (missing, truncated, tampered, expired, wrong key) reports
// ok == false; a partially-populated session is never returned.
func (c *SessionCodec) Decode(value string) (*model.Session, bool) {
	if value == "" {
		return nil, false
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	var claims sessionClaims
	token, err := parser.ParseWithClaims(value, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	if claims.AccessToken == "" || claims.User.ID == "" || claims.Subject != claims.User.ID {
		return nil, false
	}

	return &model.Session{
		ID:           claims.ID,
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		Scope:        claims.Scope,
		ExpiresAt:    claims.TokenExpiry,
		User:         claims.User,
	}, true
}

// FromRequest decodes the session cookie on r, if any.
func (c *SessionCodec) FromRequest(r *http.Request) (*model.Session, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, false
	}
	return c.Decode(cookie.Value)
}

// Clear returns a cookie that makes the browser drop the session now.
func (c *SessionCodec) Clear() *http.Cookie {
	return expiredCookie(SessionCookieName, c.secure)
}

// Secure reports whether cookies from this codec carry the Secure flag.
func (c *SessionCodec) Secure() bool {
	return c.secure
}
