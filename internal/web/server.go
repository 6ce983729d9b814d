// Package web provides the sandbox FHIR server: an in-memory stand-in for the
// target server that accepts Patient and Observation creates, so imports can
// be rehearsed locally and tested end to end.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	mw "github.com/JonMunkholm/fhirload/internal/web/middleware"
)

// FHIRRoot is the path prefix of every FHIR route.
const FHIRRoot = "/fhir"

// RequestTimeout bounds handler execution.
var RequestTimeout = 30 * time.Second

// Options configure the sandbox's middleware.
type Options struct {
	APIKeys        []string // accepted X-API-Key values; empty disables the check
	TrustedProxies []string // CIDRs allowed to set X-Real-IP / X-Forwarded-For
	RateLimit      int      // requests per minute per client IP; zero disables
}

// Server is the sandbox FHIR server.
type Server struct {
	store   *Store
	opts    Options
	router  *chi.Mux
	server  *http.Server
	limiter *rateLimiter
}

// NewServer creates a new Server instance backed by store.
func NewServer(store *Store, opts Options) *Server {
	s := &Server{
		store:  store,
		opts:   opts,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	// Built up front so Shutdown never races with Start.
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(RequestTimeout))
	s.router.Use(securityHeaders)

	if s.opts.RateLimit > 0 {
		s.limiter = newRateLimiter(s.opts.RateLimit, time.Minute)
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route(FHIRRoot, func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.opts.APIKeys, func(w http.ResponseWriter, status int, msg string) {
			writeOutcome(w, status, issueSecurity, msg)
		}))

		r.Post("/{type}", s.handleCreate)
		r.Get("/{type}", s.handleSearch)
		r.Get("/{type}/{id}", s.handleRead)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeOutcome(w, http.StatusNotFound, issueNotFound, "no route for "+r.URL.Path)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeOutcome(w, http.StatusMethodNotAllowed, issueNotSupported, r.Method+" is not supported on "+r.URL.Path)
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown, including a Shutdown that happened before Start.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	slog.Info("sandbox FHIR server listening", "addr", ln.Addr().String(), "base", "http://"+ln.Addr().String()+FHIRRoot)
	return s.server.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")
		// Responses are patient data
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
