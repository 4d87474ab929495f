// Package apperror defines the closed set of failure kinds the server reports.
//
// Every failure that can reach a client is an *AppError wrapping one of the
// sentinel kinds below. Lower layers wrap with fmt.Errorf("...: %w", err) and
// the HTTP layer uses errors.Is to pick a status code; nothing below the
// handlers knows about HTTP status codes for our own responses.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration: required client credentials or base URL are missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthFlow: CSRF state mismatch or missing PKCE verifier on callback.
	ErrAuthFlow = errors.New("auth flow error")
	// ErrUpstreamAuth: the provider rejected the token exchange or profile fetch.
	ErrUpstreamAuth = errors.New("upstream auth error")
	// ErrUpstreamData: a paginated fetch from the remote API failed.
	ErrUpstreamData = errors.New("upstream data error")
	// ErrUpstreamTimeout: a remote call did not finish in time. Retryable.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrRateLimited: the remote API or our own limiter refused the call. Retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrEnrichment: caption generation failed. Never leaves the caption package.
	ErrEnrichment = errors.New("enrichment error")
	// ErrSessionAbsent: no session cookie, or one that does not verify.
	ErrSessionAbsent = errors.New("session absent")
	// ErrValidation: the request body or parameters are malformed.
	ErrValidation = errors.New("validation error")
)

// AppError carries a failure kind plus the details needed to report it.
type AppError struct {
	Err     error  // one of the sentinel kinds above
	Message string // short, client-safe description

	// Status and Detail describe the remote failure for upstream kinds.
	// Detail is the provider's own message and is safe to show; it never
	// contains our credentials.
	Status int
	Detail string

	// RetryAfter is set for ErrRateLimited when the reset time is known.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Configuration reports a missing required setting by name.
func Configuration(setting string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: fmt.Sprintf("server configuration error: %s is not set", setting),
	}
}

// AuthFlow reports a failed CSRF/PKCE gate on the callback.
func AuthFlow(message string) *AppError {
	return &AppError{Err: ErrAuthFlow, Message: message}
}

// UpstreamAuth reports a provider rejection during login.
func UpstreamAuth(message string, status int, detail string) *AppError {
	return &AppError{Err: ErrUpstreamAuth, Message: message, Status: status, Detail: detail}
}

// UpstreamData reports a failed remote API fetch.
func UpstreamData(endpoint string, status int, detail string) *AppError {
	return &AppError{
		Err:     ErrUpstreamData,
		Message: fmt.Sprintf("remote API request failed for %s", endpoint),
		Status:  status,
		Detail:  detail,
	}
}

// UpstreamTimeout reports a remote call that exceeded its deadline.
func UpstreamTimeout(endpoint string) *AppError {
	return &AppError{
		Err:     ErrUpstreamTimeout,
		Message: fmt.Sprintf("remote API request timed out for %s", endpoint),
	}
}

// RateLimited reports a refused call. retryAfter may be zero when unknown.
func RateLimited(endpoint string, retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    fmt.Sprintf("rate limit reached for %s", endpoint),
		Status:     429,
		RetryAfter: retryAfter,
	}
}

// Enrichment wraps a caption provider failure.
func Enrichment(target string, err error) *AppError {
	msg := fmt.Sprintf("caption generation failed for %s", target)
	if err != nil {
		return &AppError{Err: ErrEnrichment, Message: msg, Detail: err.Error()}
	}
	return &AppError{Err: ErrEnrichment, Message: msg}
}

// SessionAbsent reports an unauthenticated request.
func SessionAbsent() *AppError {
	return &AppError{Err: ErrSessionAbsent, Message: "not authenticated"}
}

// ValidationFailed reports a malformed request.
func ValidationFailed(message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message}
}
