package handler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/mutual-radar/internal/apperror"
	"github.com/sakif/mutual-radar/internal/auth"
	"github.com/sakif/mutual-radar/internal/metrics"
	"github.com/sakif/mutual-radar/internal/model"
)

// stateBytes is the entropy of the CSRF state token.
const stateBytes = 32

// AuthURLBuilder builds the provider's authorization URL. *auth.Provider
// satisfies it.
type AuthURLBuilder interface {
	AuthURL(state, challenge string) string
}

// LoginCompleter turns a code and verifier into a Session.
// *service.AuthService satisfies it.
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, code, verifier string) (*model.Session, error)
}

// AuthConfig holds the settings /login refuses to run without.
type AuthConfig struct {
	ClientID string
	BaseURL  string
}

// AuthHandler manages the login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → mint state + PKCE, set flow cookies, redirect to the provider
//   - HandleCallback → check state, complete the login, set the session cookie
//   - HandleMe       → return the signed-in user's snapshot
//   - HandleLogout   → clear the session cookie
type AuthHandler struct {
	provider AuthURLBuilder
	logins   LoginCompleter
	sessions *auth.SessionCodec
	cfg      AuthConfig
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	provider AuthURLBuilder,
	logins LoginCompleter,
	sessions *auth.SessionCodec,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		logins:   logins,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleLogin redirects the browser to the provider's authorization page.
//
// HTTP: GET /login
//
// Each call mints a fresh state and verifier and overwrites any cookies
// left by an earlier, unfinished attempt.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	switch {
	case h.cfg.ClientID == "":
		h.logger.Error("login: client ID is not configured")
		writeError(w, apperror.Configuration("X_CLIENT_ID"))
		return
	case h.cfg.BaseURL == "":
		h.logger.Error("login: base URL is not configured")
		writeError(w, apperror.Configuration("APP_URL"))
		return
	}

	state, err := auth.RandomToken(stateBytes)
	if err != nil {
		writeError(w, fmt.Errorf("login: generating state: %w", err))
		return
	}
	pkce, err := auth.NewPKCE()
	if err != nil {
		writeError(w, fmt.Errorf("login: generating PKCE pair: %w", err))
		return
	}

	secure := h.sessions.Secure()
	http.SetCookie(w, auth.FlowCookie(auth.StateCookieName, state, secure))
	http.SetCookie(w, auth.FlowCookie(auth.VerifierCookieName, pkce.Verifier, secure))

	http.Redirect(w, r, h.provider.AuthURL(state, pkce.Challenge), http.StatusFound)
}

// HandleCallback completes the login.
//
// HTTP: GET /callback?code=xxx&state=yyy
//
// FLOW (fail-closed at each gate):
//  1. Provider error (?error=access_denied) → clear flow cookies, back to /?auth=denied
//  2. code, state, state cookie and verifier cookie present; state matches → else 400
//  3. Exchange code + verifier, fetch profile → else 500, no session
//  4. Set session cookie and clear flow cookies in the same response
//  5. Redirect to /
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	secure := h.sessions.Secure()

	// Flow cookies are single-use whatever happens next.
	for _, c := range auth.ClearFlowCookies(secure) {
		http.SetCookie(w, c)
	}

	// --- Step 1: the user denied access on the provider ---
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: provider returned an error",
			slog.String("error", errParam),
			slog.String("description", q.Get("error_description")),
		)
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeDenied).Inc()
		http.Redirect(w, r, "/?auth=denied", http.StatusFound)
		return
	}

	// --- Step 2: CSRF state and PKCE verifier ---
	code, state := q.Get("code"), q.Get("state")
	storedState := cookieValue(r, auth.StateCookieName)
	verifier := cookieValue(r, auth.VerifierCookieName)

	if code == "" || state == "" || storedState == "" || verifier == "" {
		h.logger.Warn("auth callback: missing code, state or flow cookies",
			slog.Bool("code", code != ""),
			slog.Bool("state", state != ""),
			slog.Bool("stateCookie", storedState != ""),
			slog.Bool("verifierCookie", verifier != ""),
		)
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		writeError(w, apperror.AuthFlow("invalid or expired login attempt"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(storedState)) != 1 {
		h.logger.Warn("auth callback: state mismatch")
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		writeError(w, apperror.AuthFlow("invalid state parameter"))
		return
	}

	// --- Step 3: token exchange + profile ---
	sess, err := h.logins.CompleteLogin(r.Context(), code, verifier)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		writeError(w, err)
		return
	}

	// --- Step 4: persist ---
	cookie, err := h.sessions.Encode(sess)
	if err != nil {
		h.logger.Error("auth callback: encoding session failed", slog.String("error", err.Error()))
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		writeError(w, apperror.UpstreamAuth("authentication failed", 0, ""))
		return
	}
	http.SetCookie(w, cookie)
	metrics.LoginsTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	// --- Step 5: back to the app ---
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleMe returns the signed-in user's snapshot.
//
// HTTP: GET /me
// Auth: Required (RequireSession puts the session in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.SessionAbsent())
		return
	}

	// Expiry is advisory: note it, keep serving.
	if sess.Expired(time.Now()) {
		h.logger.Info("session access token past expiry",
			slog.String("session", sess.ID),
			slog.String("userID", sess.User.ID),
		)
	}

	writeJSON(w, http.StatusOK, sess.User)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /logout
//
// There is nothing to revoke server-side; dropping the cookie is the whole
// logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessions.Clear())
	http.Redirect(w, r, "/", http.StatusFound)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
