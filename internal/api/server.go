package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/operia/operia/internal/config"
	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/metrics"
	"github.com/operia/operia/internal/models"
	"github.com/operia/operia/internal/notify"
	"github.com/operia/operia/internal/oauth"
	"github.com/operia/operia/internal/pipeline"
	"github.com/operia/operia/internal/statetoken"
	"github.com/operia/operia/internal/store"
)

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      *config.Config
	store       store.Store
	codec       *statetoken.Codec
	exchangers  map[models.Provider]oauth.Exchanger
	pipeline    *pipeline.Service
	notifier    *notify.Notifier
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	st store.Store,
	codec *statetoken.Codec,
	exchangers map[models.Provider]oauth.Exchanger,
	pipe *pipeline.Service,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	requestsPerMinute := cfg.API.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1000
	}
	burst := cfg.API.RateLimit.Burst
	if burst <= 0 {
		burst = 100
	}
	rateLimiter := newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	server := &Server{
		router:      gin.New(),
		config:      cfg,
		store:       st,
		codec:       codec,
		exchangers:  exchangers,
		pipeline:    pipe,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		rateLimiter: rateLimiter,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(rateLimiter))
	server.router.Use(bodyLimitMiddleware(1 << 20))
	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start).Seconds()
		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", duration,
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	// Provider callbacks are redirected by the provider's consent screen;
	// the browser carries no API key, so they stay public. CSRF protection
	// comes from the encrypted state token.
	s.router.GET("/integrations/:provider/callback", s.handleCallback)

	authMiddleware := APIKeyAuth(s.config.API.Auth.APIKeys, s.config.API.Auth.HeaderName, s.logger)
	userMiddleware := RequireUser(s.config.API.Auth.UserHeader)

	integrations := s.router.Group("/integrations")
	integrations.Use(authMiddleware, userMiddleware)
	{
		integrations.GET("/:provider/auth", s.handleAuth)
		integrations.GET("/:provider/status", s.handleStatus)
		integrations.POST("/:provider/disconnect", s.handleDisconnect)
		integrations.POST("/:provider/sync", s.handleSync)
	}

	extractGroup := s.router.Group("/extract")
	extractGroup.Use(authMiddleware, userMiddleware)
	{
		extractGroup.POST("/text", s.handleExtractText)
	}

	taskGroup := s.router.Group("/tasks")
	taskGroup.Use(authMiddleware, userMiddleware)
	{
		taskGroup.GET("", s.handleListTasks)
		taskGroup.POST("/:id/status", s.handleUpdateTaskStatus)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its dependencies
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if s.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("shutting down HTTP server")
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", "error", err.Error())
				errs <- &errors.ErrServerShutdown{Err: err}
			}
		}()
	}

	if s.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Close(); err != nil {
				errs <- fmt.Errorf("store close: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(errs)
	var errList []error
	for err := range errs {
		if err != nil {
			errList = append(errList, err)
		}
	}
	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %v", errList)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
