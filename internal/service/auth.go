// Package service holds the authentication business logic.
//
// AuthService sits between the callback handler and the two remote calls a
// login needs:
//
//	AuthHandler (HTTP) → AuthService → Provider.Exchange (token endpoint)
//	                                 ↘ Profiles.Me      (users/me)
//
// It knows nothing about cookies or redirects; the handler turns the returned
// Session into a cookie.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mutual-radar/internal/apperror"
	"github.com/sakif/mutual-radar/internal/auth"
	"github.com/sakif/mutual-radar/internal/model"
)

// loginFailed is the only message a client sees for a failed exchange.
const loginFailed = "authentication failed"

// TokenExchanger trades an authorization code for tokens. *auth.Provider
// satisfies it.
type TokenExchanger interface {
	Exchange(ctx context.Context, code, verifier string) (*auth.Token, error)
}

// ProfileFetcher loads the profile behind an access token. *xapi.Client
// satisfies it.
type ProfileFetcher interface {
	Me(ctx context.Context, accessToken string) (*model.User, error)
}

// AuthService completes logins.
type AuthService struct {
	provider TokenExchanger
	profiles ProfileFetcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(provider TokenExchanger, profiles ProfileFetcher, logger *slog.Logger) *AuthService {
	return &AuthService{
		provider: provider,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// CompleteLogin exchanges the code and verifier for tokens, fetches the
// signed-in user's profile, and builds the Session. Every failure is an ErrUpstreamAuth with a
// generic message; provider bodies go to the log only.
func (s *AuthService) CompleteLogin(ctx context.Context, code, verifier string) (*model.Session, error) {
	if code == "" || verifier == "" {
		return nil, apperror.AuthFlow("missing authorization code or verifier")
	}

	tok, err := s.provider.Exchange(ctx, code, verifier)
	if err != nil {
		status := 0
		var exErr *auth.ExchangeError
		if errors.As(err, &exErr) {
			status = exErr.StatusCode
			s.logger.Error("token exchange rejected",
				slog.Int("status", exErr.StatusCode),
				slog.String("body", exErr.Body),
			)
		} else {
			s.logger.Error("token exchange failed", slog.String("error", err.Error()))
		}
		return nil, apperror.UpstreamAuth(loginFailed, status, "")
	}

	user, err := s.profiles.Me(ctx, tok.AccessToken)
	if err != nil {
		status, detail := 0, ""
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			status, detail = appErr.Status, appErr.Detail
		}
		s.logger.Error("profile fetch failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		return nil, apperror.UpstreamAuth(loginFailed, status, detail)
	}

	sess := &model.Session{
		ID:           xid.New().String(),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        tok.Scope,
		User:         *user,
	}
	if !tok.Expiry.IsZero() {
		sess.ExpiresAt = tok.Expiry.Unix()
	}

	s.logger.Info("user authenticated",
		slog.String("session", sess.ID),
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.Bool("refreshable", sess.RefreshToken != ""),
	)
	return sess, nil
}
