// Package web provides the HTTP API for the import pipeline.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/fleetimport/internal/config"
	"github.com/JonMunkholm/fleetimport/internal/core"
	mw "github.com/JonMunkholm/fleetimport/internal/web/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	stopLimiters context.CancelFunc
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopLimiters = cancel

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		r.Use(requestMetadata)
		if s.cfg.Rate.Enabled {
			r.Use(newRateLimiter(ctx, s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
		}

		// Server-sent events must not be cut off by the request timeout.
		r.Get("/commits/{commitID}/events", s.handleCommitEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			// Field catalog
			r.Get("/entities", s.handleListEntities)
			r.Get("/entities/{entity}/fields", s.handleEntityFields)
			r.Get("/entities/{entity}/template", s.handleDownloadTemplate)

			// Import sessions
			r.With(s.uploadLimit(ctx)).Post("/imports/{entity}", s.handleSelectFile)
			r.Get("/imports/{sessionID}", s.handleGetSession)
			r.Delete("/imports/{sessionID}", s.handleResetSession)
			r.Post("/imports/{sessionID}/mapping/auto", s.handleAutoMapping)
			r.Put("/imports/{sessionID}/mapping", s.handleUpdateMapping)
			r.Put("/imports/{sessionID}/fixed", s.handleSetFixedValues)
			r.Get("/imports/{sessionID}/profiles", s.handleMatchProfiles)
			r.Post("/imports/{sessionID}/profiles", s.handleSaveSessionProfile)
			r.Post("/imports/{sessionID}/mapping/profile/{profileID}", s.handleApplyProfile)
			r.Post("/imports/{sessionID}/preview", s.handlePreview)
			r.Post("/imports/{sessionID}/commit", s.handleCommit)

			// Commits
			r.Get("/commits/{commitID}", s.handleCommitStatus)
			r.Get("/commits/{commitID}/outcome", s.handleCommitOutcome)
			r.Get("/commits/{commitID}/errors", s.handleExportRowErrors)
			r.Post("/commits/{commitID}/cancel", s.handleCancelCommit)

			// Mapping profiles
			r.Get("/profiles/{entity}", s.handleListProfiles)
			r.Post("/profiles", s.handleSaveProfile)

			r.Get("/queue", s.handleQueueStatus)
		})
	})
}

// uploadLimit applies the stricter file selection rate limit.
func (s *Server) uploadLimit(ctx context.Context) func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled || s.cfg.Rate.UploadLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return newRateLimiter(ctx, s.cfg.Rate.UploadLimit, time.Minute).middleware
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopLimiters()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports liveness and commit slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"queue":  s.service.Limiter().Status(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple fixed window rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
// Stale entries are swept until ctx is done.
func newRateLimiter(ctx context.Context, rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup(ctx)
	return rl
}

// cleanup removes stale visitor entries every window.
func (rl *rateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1,
			lastReset: time.Now(),
		}
		return true
	}

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by client IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondErrorJSON(w, core.MapError(errRateLimited), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
