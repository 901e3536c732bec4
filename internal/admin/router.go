package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "campaignd/internal/admin/docs"
	"campaignd/internal/config"
	"campaignd/internal/logger"
	"campaignd/pkg/health"
	"campaignd/pkg/middleware"
	"campaignd/pkg/ratelimit"
	"campaignd/pkg/tracing"
)

type RouterOptions struct {
	ServiceName string
	Tracing     bool
	RateLimit   config.RateLimitConfig
	Health      *health.CheckerRegistry
}

// @title        Campaign Consumer Admin API
// @version      1.0
// @description  Campaign completion progress and manual reconciliation.
// @BasePath     /api/v1
// @schemes      http

// NewRouter builds the admin engine. ctx bounds background work owned by
// the middleware chain.
func NewRouter(ctx context.Context, h *Handler, opts RouterOptions, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if opts.Tracing {
		router.Use(tracing.GinMiddleware(opts.ServiceName))
	}

	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(log))

	if opts.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			RPS:             opts.RateLimit.RPS,
			Burst:           opts.RateLimit.Burst,
			CleanupInterval: opts.RateLimit.CleanupInterval,
			MaxAge:          opts.RateLimit.MaxAge,
		}
		router.Use(ratelimit.Middleware(ctx, rateLimitConfig))
		log.InfowCtx(ctx, "Rate limiting enabled", "rps", opts.RateLimit.RPS, "burst", opts.RateLimit.Burst)
	}

	registry := opts.Health
	if registry == nil {
		registry = health.NewCheckerRegistry()
	}
	router.GET("/health", func(c *gin.Context) {
		result := registry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if result.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, result)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	h.RegisterRoutes(router)
	return router
}
