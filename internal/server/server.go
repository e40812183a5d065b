// Package server exposes the settlement service as a JSON API for the shop's
// single-page app, plus printable invoices.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"motoshop/internal/config"
	"motoshop/internal/repository"
	"motoshop/internal/settlement"
	"motoshop/internal/templates"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	repos     *repository.Repositories
	svc       *settlement.Service
	templates *templates.Manager
	log       logrus.FieldLogger
	router    *chi.Mux
	http      *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, repos *repository.Repositories, svc *settlement.Service, tmpl *templates.Manager, log logrus.FieldLogger) *Server {
	s := &Server{
		config:    cfg,
		repos:     repos,
		svc:       svc,
		templates: tmpl,
		log:       log,
		router:    chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Run starts the server and blocks until it fails or receives SIGINT/SIGTERM,
// then shuts down gracefully
func (s *Server) Run() error {
	serverErrors := make(chan error, 1)

	go func() {
		s.log.WithFields(logrus.Fields{"addr": s.config.Address(), "debug": s.config.Debug}).Info("server starting")
		serverErrors <- s.http.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.WithField("signal", sig.String()).Warn("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.http.Shutdown(ctx); err != nil {
			s.log.WithError(err).Error("graceful shutdown failed")
			if err := s.http.Close(); err != nil {
				return fmt.Errorf("failed to close server: %w", err)
			}
		}

		s.log.Info("server shutdown complete")
	}

	return nil
}

// setupMiddleware configures global middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(30 * time.Second))
}

// securityHeaders adds security-related headers to all responses
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// invoices embed their QR code as a data: image
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLog returns a logger tagged with the request id
func (s *Server) requestLog(r *http.Request) logrus.FieldLogger {
	log := s.log.WithField("request_id", middleware.GetReqID(r.Context()))
	if claims := getUserClaims(r); claims != nil {
		log = log.WithField("user", claims.UserID)
	}
	return log
}
