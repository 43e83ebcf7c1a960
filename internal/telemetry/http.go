package telemetry

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPLogger logs one line per request with method, path, status and latency.
func HTTPLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		}

		if len(c.Errors) > 0 {
			slog.ErrorContext(ctx, "http: request failed", append(attrs, "errors", c.Errors.String())...)
			return
		}
		slog.InfoContext(ctx, "http: request", attrs...)
	}
}
