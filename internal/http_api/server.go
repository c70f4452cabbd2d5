package http_api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP binding settings.
type Config struct {
	Port int
	// BasePath is where payment links are served, e.g. "/pay".
	BasePath string
	// APIKey guards the admin API; empty disables it.
	APIKey string
	CORS   bool
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Version        string
}

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	// logger is the logger instance
	logger *logger.Logger
	config Config

	// router is the HTTP router
	router *gin.Engine

	// server is the underlying HTTP server
	server *http.Server

	// portal is the protocol engine
	portal models.PortalService
}

var _ models.APIServer = (*HTTPServer)(nil)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-API-Key, X-Subscriber-Address")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(portal models.PortalService, config Config, logger *logger.Logger) *HTTPServer {
	if config.BasePath == "" {
		config.BasePath = "/pay"
	}
	config.BasePath = "/" + strings.Trim(config.BasePath, "/")

	router := gin.Default()

	if config.CORS {
		router.Use(corsMiddleware())
	}

	server := &HTTPServer{
		router: router,
		config: config,
		portal: portal,
		logger: logger,
	}

	// Define routes
	server.routes()

	return server
}

// Handler exposes the router, e.g. for httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() {
	addr := fmt.Sprintf("0.0.0.0:%v", s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Starting HTTP server", "address", addr, "basePath", s.config.BasePath)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Fatalf("Failed to start the HTTP server: %v", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}
