package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medportal/config"
	"medportal/internal/handler"
	"medportal/internal/identity"
	"medportal/internal/middleware"
	"medportal/internal/services"
	"medportal/internal/transport/httpdto"
	ws "medportal/internal/websocket"
	"medportal/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	checks     []HealthCheck
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Auth      *handler.AuthHandler
	Artifact  *handler.ArtifactHandler
	Ledger    *handler.LedgerHandler
	WebSocket *ws.Handler
}

// HealthCheck checks one dependency for GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = cfg.MaxUploadBytes + 1<<20

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) AddHealthCheck(name string, check func(ctx context.Context) error) {
	s.checks = append(s.checks, HealthCheck{Name: name, Check: check})
}

// SetupRoutes mounts the API. limiter may be nil, which disables rate
// limiting.
func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter middleware.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/health", s.health)

	var authLimit, createLimit gin.HandlerFunc = noop, noop
	if limiter != nil {
		authLimit = middleware.AuthRateLimitMiddleware(limiter, s.config.RateLimitOnErr)
		createLimit = middleware.CreateRateLimitMiddleware(limiter, s.config.RateLimitOnErr)
	}
	requireAuth := middleware.AuthMiddleware(authService)
	doctorOnly := middleware.RequireRole(identity.RoleDoctor)

	v1 := s.engine.Group("/v1")
	v1.POST("/auth/session", authLimit, handlers.Auth.Session)
	v1.GET("/me", requireAuth, handlers.Auth.Me)

	artifacts := v1.Group("/artifacts", requireAuth)
	{
		artifacts.POST("", doctorOnly, createLimit, handlers.Artifact.Create)
		artifacts.GET("", handlers.Artifact.List)
		artifacts.GET("/:id", handlers.Artifact.Get)
		artifacts.PATCH("/:id/status", handlers.Artifact.UpdateStatus)
		artifacts.POST("/:id/reconcile", doctorOnly, handlers.Artifact.Reconcile)
	}

	v1.GET("/ledger/:tx", requireAuth, handlers.Ledger.Get)

	if handlers.WebSocket != nil {
		v1.GET("/ws", handlers.WebSocket.Connect)
	}
}

func noop(c *gin.Context) { c.Next() }

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	healthy := true
	for _, hc := range s.checks {
		if err := hc.Check(ctx); err != nil {
			results[hc.Name] = err.Error()
			healthy = false
			continue
		}
		results[hc.Name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, httpdto.Response[gin.H]{
			Success: false,
			Data:    gin.H{"status": "unhealthy", "checks": results},
			Error:   "dependency check failed",
			Code:    "UNHEALTHY",
		})
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy", "checks": results}))
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
