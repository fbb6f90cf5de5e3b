package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerMiddleware logs every request except the operational endpoints,
// which scrapers and load balancers hit often enough to drown the payment
// traffic.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c.Request.Context())),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		// Identity is attached by RequireRole further down the chain, so it
		// is visible here once the handlers have run.
		if identity, ok := GetIdentity(c); ok {
			fields = append(fields,
				zap.Int("user_id", identity.UserID),
				zap.String("role", identity.Role),
			)
		}

		logger.Info("HTTP Request", fields...)
	}
}
