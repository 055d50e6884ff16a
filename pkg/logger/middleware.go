package logger

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestLogging returns a gin middleware that assigns a request id, stores
// it in the request context, and logs each request with its outcome. Paths
// in skipPaths (health probes, readiness) are not logged.
func RequestLogging(log *Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}

		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		ctx := ContextWithRequestID(c.Request.Context(), requestID)
		if tenantID := c.Param("tenant_id"); tenantID != "" {
			ctx = ContextWithTenantID(ctx, tenantID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		entry := log.WithContext(ctx).WithFields(map[string]interface{}{
			"http_method": c.Request.Method,
			"http_path":   c.Request.URL.Path,
			"http_status": status,
			"duration_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
			"client_ip":   c.ClientIP(),
		})

		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", strings.Join(c.Errors.Errors(), "; "))
		}

		message := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(message)
		case status >= http.StatusBadRequest:
			entry.Warn(message)
		default:
			entry.Info(message)
		}
	}
}

// Recovery returns a gin middleware that logs panics with a stack trace and
// converts them into 500 responses.
func Recovery(log *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
					"panic":       fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
					"http_path":   c.Request.URL.Path,
				}).Error("request handler panicked")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
