// Package v1 provides HTTP API version 1.
package v1

import (
	"context"

	"github.com/gin-gonic/gin"

	"seqnum/internal/domain/records"
	"seqnum/internal/infrastructure/http/v1/handlers"
	"seqnum/internal/infrastructure/http/v1/middleware"
	"seqnum/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Service is the write path for configured tables.
	Service *records.Service

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation. Nil disables authentication.
	JWTValidator middleware.JWTValidator

	// Driver and Ping back the health endpoints.
	Driver string
	Ping   func(ctx context.Context) error
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger.WithComponent("http")))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Driver, cfg.Ping)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	if cfg.JWTValidator != nil {
		v1.Use(middleware.Auth(cfg.JWTValidator))
	}

	base := handlers.NewBaseHandler()
	RegisterRecordRoutes(v1, handlers.NewRecordsHandler(base, cfg.Service), cfg.JWTValidator != nil)

	return router
}
