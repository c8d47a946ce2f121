// Package api assembles the HTTP server: the Gin engine, middleware chain,
// and route registration for the OpenAI-compatible surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lingyicute/openai-gemini/internal/api/handlers"
	"github.com/lingyicute/openai-gemini/internal/api/handlers/openai"
	"github.com/lingyicute/openai-gemini/internal/api/middleware"
	"github.com/lingyicute/openai-gemini/internal/config"
	"github.com/lingyicute/openai-gemini/internal/logging"
	"github.com/lingyicute/openai-gemini/internal/upstream/gemini"
)

// Server is the gateway HTTP server.
type Server struct {
	engine *gin.Engine
	server *http.Server

	base   *handlers.BaseAPIHandler
	openai *openai.OpenAIAPIHandler
}

// NewServer constructs the server from the loaded configuration.
func NewServer(cfg *config.Config) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware())

	upstream := gemini.NewClient(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.TimeoutSeconds)
	base := handlers.NewBaseAPIHandler(cfg, upstream)

	s := &Server{
		engine: engine,
		base:   base,
		openai: openai.NewOpenAIAPIHandler(base),
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1")
	v1.Use(middleware.APIKeyAuth(s.clientKeys))
	v1.POST("/chat/completions", s.openai.ChatCompletions)
	v1.POST("/embeddings", s.openai.Embeddings)
	v1.GET("/models", s.openai.Models)
}

func (s *Server) clientKeys() []string {
	return s.base.Config().APIKeys
}

// UpdateConfig applies a reloaded configuration to the running server. The
// shared handler state swaps the config and rebuilds the upstream client.
// Listener address changes require a restart and are ignored here.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.base.UpdateConfig(cfg)
	logging.SetDebug(cfg.Debug)
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	log.Infof("starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the API server without interrupting any active
// connections.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("stopping API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// corsMiddleware adds permissive CORS headers and short-circuits preflight
// requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "*")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ShutdownTimeout bounds graceful shutdown on process exit.
const ShutdownTimeout = 10 * time.Second
