package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
	"github.com/custodia-labs/sitechat/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// AIServices exposes the AI services currently configured
type AIServices interface {
	EmbeddingService() driven.EmbeddingService
	LLMService() driven.LLMService
	Capabilities() domain.Capabilities
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string

	// Services
	ingestionService driving.IngestionService
	answerService    driving.AnswerService
	siteService      driving.SiteService

	// Infrastructure
	taskQueue  driven.TaskQueue
	db         Pinger     // PostgreSQL health check
	aiServices AIServices // can be nil
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Version     string
	CORSOrigins []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8080,
		Version:     "dev",
		CORSOrigins: []string{"*"},
	}
}

// Deps are the services the server routes to
type Deps struct {
	Ingestion driving.IngestionService
	Answers   driving.AnswerService
	Sites     driving.SiteService
	TaskQueue driven.TaskQueue
	DB        Pinger
	AI        AIServices
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		ingestionService: deps.Ingestion,
		answerService:    deps.Answers,
		siteService:      deps.Sites,
		taskQueue:        deps.TaskQueue,
		db:               deps.DB,
		aiServices:       deps.AI,
	}

	s.setupRoutes()

	s.handler = NewRecoveryMiddleware().Handler(
		NewLoggingMiddleware().Handler(
			NewCORSMiddleware(cfg.CORSOrigins).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// Streaming answers lift this per request
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped request handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Ingestion endpoints
	s.router.HandleFunc("POST /api/v1/ingestions", s.handleTriggerIngestion)
	s.router.HandleFunc("GET /api/v1/ingestions/{id}", s.handleGetIngestion)

	// Site catalogue
	s.router.HandleFunc("GET /api/v1/sites", s.handleListSites)
	s.router.HandleFunc("GET /api/v1/sites/{id}", s.handleGetSite)
	s.router.HandleFunc("DELETE /api/v1/sites/{id}", s.handleDeleteSite)

	// Answers
	s.router.HandleFunc("POST /api/v1/sites/{id}/ask", s.handleAsk)
	s.router.HandleFunc("POST /api/v1/sites/{id}/ask/stream", s.handleAskStream)

	// Pages
	s.router.HandleFunc("GET /api/v1/pages/{id}", s.handleGetPage)
	s.router.HandleFunc("DELETE /api/v1/pages/{id}", s.handleDeletePage)
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
