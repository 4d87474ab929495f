package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ProviderConfig holds what the X OAuth 2.0 endpoints need to know about us.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string // empty for public clients
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	HTTPClient   *http.Client // used for the token request; nil means http.DefaultClient
}

// Token is the subset of the token endpoint response the session keeps.
type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	Expiry       time.Time // zero when the provider sent no expires_in
}

// Provider wraps golang.org/x/oauth2 for the X Authorization Code + PKCE flow.
//
// FLOW:
//  1. /login redirects the browser to AuthURL with a random state and the
//     S256 challenge of a fresh verifier; both are kept in flow cookies.
//  2. The user approves on X, which redirects to /callback?code=...&state=...
//  3. Exchange trades the code plus the original verifier for tokens. The
//     provider recomputes the challenge, so a stolen code is useless without
//     the verifier cookie.
type Provider struct {
	config *oauth2.Config
	client *http.Client
}

// NewProvider builds a Provider. The client credentials are sent with HTTP
// Basic auth on the token request, which is what X expects for confidential
// clients.
func NewProvider(cfg ProviderConfig) *Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
	}
}

// AuthURL returns the authorization URL for one login attempt.
func (p *Provider) AuthURL(state, challenge string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethod),
	)
}

// ExchangeError is returned when the token endpoint rejects the code.
// Body is the raw provider response; log it, never show it to the user.
type ExchangeError struct {
	StatusCode int
	Body       string
	err        error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth: token exchange failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("auth: token exchange failed: %v", e.err)
}

func (e *ExchangeError) Unwrap() error { return e.err }

// Exchange trades an authorization code and its PKCE verifier for tokens.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.config.Exchange(ctx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("client_id", p.config.ClientID),
	)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &ExchangeError{StatusCode: re.Response.StatusCode, Body: string(re.Body), err: err}
		}
		return nil, &ExchangeError{err: err}
	}
	if tok.AccessToken == "" {
		return nil, &ExchangeError{err: errors.New("response carried no access token")}
	}

	scope, _ := tok.Extra("scope").(string)
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        scope,
		Expiry:       tok.Expiry,
	}, nil
}
