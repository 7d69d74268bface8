package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unirank/unirank/api/handler"
	"github.com/unirank/unirank/api/middleware"
	"github.com/unirank/unirank/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, rn *handler.Runner, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(rn, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.GET("/rankings", handler.Rankings(rn))
	protected.POST("/runs", handler.PostRun(rn))
	protected.GET("/runs/current", handler.GetCurrentRun(rn))

	return r
}
