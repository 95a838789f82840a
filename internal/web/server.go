// Package web serves the gallery HTTP API.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mzurita/fototeca/internal/extractor"
	"github.com/mzurita/fototeca/internal/hybrid"
	"github.com/mzurita/fototeca/internal/importer"
	"github.com/mzurita/fototeca/internal/resolver"
)

// Server represents the web server
type Server struct {
	stores     *hybrid.Stores
	resolver   *resolver.Resolver
	extractor  extractor.Extractor
	importer   *importer.Importer
	router     *chi.Mux
	httpServer *http.Server
	jobManager *JobManager
}

// NewServer creates a new web server
func NewServer(stores *hybrid.Stores, res *resolver.Resolver, ext extractor.Extractor, host string, port int) *Server {
	r := chi.NewRouter()

	s := &Server{
		stores:     stores,
		resolver:   res,
		extractor:  ext,
		importer:   importer.New(stores.Meta),
		router:     r,
		jobManager: NewJobManager(),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // imports of large directories run synchronously
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Post("/import", s.handleImport)

		r.Get("/photos/{id}", s.handleGetPhoto)
		r.Post("/photos/{id}/process", s.handleProcessPhoto)

		r.Get("/jobs/{id}", s.handleGetJob)

		r.Get("/persons/{id}", s.handleGetPerson)
		r.Put("/persons/{id}", s.handleRenamePerson)

		r.Post("/faces/search", s.handleFaceSearch)
		r.Post("/reconcile", s.handleReconcile)
	})
}
