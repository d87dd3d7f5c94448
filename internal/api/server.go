package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/client"
	"github.com/kongor-net/agql/internal/config"
	"github.com/kongor-net/agql/internal/events"
	"github.com/kongor-net/agql/internal/health"
	"github.com/kongor-net/agql/internal/store"
)

// Server is the REST facade (F2) over the Client engine. It never holds
// core state of its own — every handler parses a request, calls into
// engine, and encodes the result.
type Server struct {
	cfg      config.AppConfig
	eventBus *events.EventBus
	engine   *client.Client
	audit    *store.AuditLog // nil disables RCON audit logging, not RCON itself
	health   *health.Manager

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a Server bound to engine. audit and healthMgr may be nil.
func NewServer(cfg config.AppConfig, eventBus *events.EventBus, engine *client.Client, audit *store.AuditLog, healthMgr *health.Manager) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{cfg: cfg, eventBus: eventBus, engine: engine, audit: audit, health: healthMgr}
}

// Start builds the router and serves it until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := s.cfg.API.ListenAddr
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if s.cfg.Security.TLSEnabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api server listen failed: %w", err)
	}

	log.Info().Str("addr", addr).Msg("rest facade starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if s.cfg.Security.TLSEnabled {
		err = s.httpServer.ServeTLS(ln, s.cfg.Security.TLSCertFile, s.cfg.Security.TLSKeyFile)
	} else {
		err = s.httpServer.Serve(ln)
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(s.cfg.Security.RateLimitRPS).Middleware())

	v1 := router.Group("/v1")
	{
		v1.POST("/query/info", s.handleQueryInfo)
		v1.POST("/query/players", s.handleQueryPlayers)
		v1.POST("/query/rules", s.handleQueryRules)
		v1.POST("/query/master", s.handleQueryMaster)
		v1.POST("/rcon/exec", s.handleRCONExec)
		v1.GET("/master/stream", s.handleMasterStream)
		v1.GET("/health", s.handleHealth)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}
