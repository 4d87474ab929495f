package handler

// RESPONSE HELPERS:
// Every JSON response goes through writeJSON and every failure through
// writeError, so the browser always gets the same error shape:
//
//	{"error": "upstream_error", "message": "remote API request failed for mentions: Too Many Requests"}
//
// writeError is the only place that maps apperror kinds to HTTP status codes.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/sakif/mutual-radar/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "rate_limited"
	Message string `json:"message"` // short, client-safe description
}

// writeJSON sends data as JSON with the given status code. Headers must be
// set before WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to a status code and sends it.
//
// errors.Is walks the whole chain, so a wrapped error such as
//
//	fmt.Errorf("discovery: fetching mentions: %w", apperror.UpstreamData(...))
//
// still maps to the upstream status.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Unknown errors never reach the client verbatim.
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	kind := "internal_error"
	message := appErr.Message

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrAuthFlow):
		status, kind = http.StatusBadRequest, "auth_flow_error"
	case errors.Is(err, apperror.ErrSessionAbsent):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrConfiguration):
		status, kind = http.StatusInternalServerError, "configuration_error"
	case errors.Is(err, apperror.ErrUpstreamAuth):
		status, kind = http.StatusInternalServerError, "upstream_auth_error"
	case errors.Is(err, apperror.ErrUpstreamData):
		// The provider's own detail helps the user; it never carries our secrets.
		status, kind, message = http.StatusInternalServerError, "upstream_error", appErr.Error()
	case errors.Is(err, apperror.ErrUpstreamTimeout):
		status, kind = http.StatusGatewayTimeout, "upstream_timeout"
	case errors.Is(err, apperror.ErrRateLimited):
		status, kind = http.StatusTooManyRequests, "rate_limited"
		if appErr.RetryAfter > 0 {
			secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}
