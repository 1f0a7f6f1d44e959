package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClareAI/astra-call-relay/internal/config"
	"github.com/ClareAI/astra-call-relay/internal/handler"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Server represents the call relay server
type Server struct {
	config         *config.Config
	router         *mux.Router
	handlerManager *handler.HandlerManager
	httpServer     *http.Server
}

// NewServer creates a new call relay server
func NewServer(cfg *config.Config) (*Server, error) {
	// Create router
	router := mux.NewRouter()

	// Initialize handler manager - it will create all services internally
	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize handlers: %w", err)
	}

	// Setup all routes through handler manager
	handlerManager.SetupAllRoutes(router)

	// Write timeout stays unset: websocket calls outlive any fixed response deadline
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
		httpServer:     httpServer,
	}, nil
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	logger.Base().Info("Starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes live calls and flushes pending events
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.handlerManager.Shutdown(ctx)
	return err
}

// GetConnectionCount returns the current number of active calls
func (s *Server) GetConnectionCount() int {
	return s.handlerManager.ActiveCalls()
}

func main() {
	// 0. Load .env file for local development if it exists
	// This will not override environment variables set by Helm/Docker
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	// 1. Load configuration from environment
	cfg := config.Load()

	// Initialize zap logger and redirect stdlib log to it
	if _, err := logger.Init(cfg.LogEnv); err != nil {
		log.Printf("Failed to initialize zap logger, falling back to development logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Base().Fatal("Invalid configuration", zap.Error(err))
	}

	// 2. Create the server
	server, err := NewServer(cfg)
	if err != nil {
		logger.Base().Fatal("Failed to create server", zap.Error(err))
	}
	logger.Base().Info("Server initialized successfully",
		zap.String("port", cfg.Port),
		zap.String("session_store", cfg.SessionStore),
		zap.Int("max_connections", cfg.MaxConnections))

	// 3. Start the server and wait for a signal
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Base().Fatal("Server failed to start", zap.Error(err))
		}
	case sig := <-stop:
		logger.Base().Info("Shutting down",
			zap.String("signal", sig.String()),
			zap.Int("active_calls", server.GetConnectionCount()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Base().Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Base().Info("Server stopped")
}
