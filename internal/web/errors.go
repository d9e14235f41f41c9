package web

// errors.go provides unified error response handling for the API.
//
// Every error is:
//   - Logged with full technical details and the request ID (server-side)
//   - Returned to the client as a user-friendly message with an action
//
// The flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err), which picks the status from the error
//  3. Error is mapped via core.MapError to get the user-facing message
//  4. Technical error + context is logged with request ID for correlation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/logging"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
	errBadFormat   = errors.New("unsupported file type for export")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message with the status
// statusFor picks.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if errors.Is(err, core.ErrTooManyImports) {
		w.Header().Set("Retry-After", "30")
	}
	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		decodeErr *core.DecodeError
		bodyErr   *badRequest
	)
	switch {
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrCommitNotFound),
		errors.Is(err, core.ErrProfileNotFound),
		errors.Is(err, core.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCommitRunning):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &decodeErr),
		errors.As(err, &bodyErr),
		errors.Is(err, core.ErrInvalidProfile),
		errors.Is(err, errNoFile),
		errors.Is(err, errBadFormat),
		isBadRequest(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// isBadRequest catches request validation errors that carry no sentinel.
func isBadRequest(err error) bool {
	code := core.MapError(err).Code
	return strings.HasPrefix(code, "VAL") || strings.HasPrefix(code, "MAP") || strings.HasPrefix(code, "FILE")
}

// badRequest wraps a malformed body error so it maps to 400.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }
