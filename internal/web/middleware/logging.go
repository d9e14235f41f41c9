// Package middleware provides HTTP middleware for the import API.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/logging"
)

// Logger is an HTTP middleware that logs request details using structured logging.
//
// It runs after TrustedRealIP, so RemoteAddr already holds the client address.
// Log fields:
//   - method, path, status
//   - bytes: response body size
//   - duration_ms: Request processing time in milliseconds
//   - ip, user_agent
//   - actor: set when an API key was accepted
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		// Handlers further down replace the request context; the actor is
		// read back through this holder.
		holder := &requestInfo{}
		next.ServeHTTP(ww, r.WithContext(withRequestInfo(r.Context(), holder)))

		logger := logging.FromContext(r.Context())
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"bytes", ww.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if holder.actor != "" {
			args = append(args, "actor", holder.actor)
		}

		switch {
		case ww.status >= 500:
			logger.Error("request", args...)
		case ww.status >= 400:
			logger.Warn("request", args...)
		default:
			logger.Info("request", args...)
		}
	})
}

// RecordActor notes the request actor for the access log.
func RecordActor(r *http.Request) {
	if h := requestInfoFrom(r.Context()); h != nil {
		h.actor = core.ActorFromContext(r.Context())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the Flusher for SSE.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type requestInfoKey struct{}

// requestInfo carries values set deep in the handler chain back to Logger.
type requestInfo struct {
	actor string
}

func withRequestInfo(ctx context.Context, h *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, h)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	h, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return h
}
