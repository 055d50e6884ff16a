package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rizrmd/travel-sub003/internal/api"
	"github.com/rizrmd/travel-sub003/pkg/logger"
	"github.com/rizrmd/travel-sub003/pkg/metrics"
)

// RouteRegistrar is implemented by controllers that attach routes to the
// versioned API group.
type RouteRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// Server wraps the gin engine with lifecycle management
type Server struct {
	config     *Config
	log        *logger.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the engine, middleware stack, and routes
func New(config *Config, log *logger.Logger, monitoring *api.MonitoringController, latency *metrics.LatencyRecorder, controllers ...RouteRegistrar) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(logger.Recovery(log))
	engine.Use(logger.RequestLogging(log, "/healthz", "/readyz"))
	if latency != nil {
		engine.Use(LatencyMiddleware(latency))
	}
	if config.CORSEnabled {
		engine.Use(CORSMiddleware(config.CORSAllowedOrigins))
	}
	if config.RateLimitEnabled {
		engine.Use(NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst).Middleware())
	}
	engine.Use(MaxRequestSizeMiddleware(config.MaxRequestSize))

	engine.GET("/healthz", monitoring.Liveness)
	engine.GET("/readyz", monitoring.Readiness)

	apiGroup := engine.Group(config.APIPrefix)
	monitoring.RegisterRoutes(apiGroup)
	for _, c := range controllers {
		c.RegisterRoutes(apiGroup)
	}

	return &Server{
		config: config,
		log:    log,
		engine: engine,
		httpServer: &http.Server{
			Addr:         config.Address(),
			Handler:      engine,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}, nil
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.log.WithField("address", s.config.Address()).Info("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
