// Package core provides the API chassis for the seatscan service. It creates
// a chi router compatible with both standard HTTP (for local dev) and AWS
// Lambda Proxy Integration (via chiadapter). It enforces cross-cutting
// concerns -- security, logging, and error handling -- before requests reach
// domain-specific handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"seatscan/internal/config"
)

// Server encapsulates the chassis dependencies for the seatscan API, allowing
// for easy injection during testing and distinct configuration for different
// environments. Domain handlers register themselves via V1RouteRegistrars,
// populated by the application entry point; the indirection avoids import
// cycles between core and handler packages.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator

	// V1RouteRegistrars are mounted under /v1 in registration order.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a fail-fast check on critical
// dependencies; the caller mounts routes after construction.
func NewServer(cfg *config.Config, auth Authenticator, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	v, err := NewValidator(logger)
	if err != nil {
		return nil, fmt.Errorf("initializing validator: %w", err)
	}

	return &Server{
		Config:        cfg,
		Logger:        logger,
		Validator:     v,
		Authenticator: auth,
		router:        chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router. Used by
// http.ListenAndServe (local) and chiadapter.New (Lambda).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
