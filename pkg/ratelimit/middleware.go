package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campaignd/pkg/metrics"
)

// Middleware limits each client IP to cfg.RPS with bursts of cfg.Burst.
// The idle-bucket janitor stops with ctx.
func Middleware(ctx context.Context, cfg Config) gin.HandlerFunc {
	clients := NewClients(cfg)
	go clients.RunJanitor(ctx)

	limit := strconv.FormatFloat(clients.cfg.RPS, 'f', -1, 64)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = c.RemoteIP()
		}

		allowed, remaining := clients.Allow(key, time.Now())
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Next()
	}
}
