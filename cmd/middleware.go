package main

import (
	"time"

	"open-llm-gateway/core"
	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// requestLoggerMiddleware records one row per proxied request. Routing
// details (model, backend, stream) are published by the handler through
// the gin context; requests rejected before routing log without them.
func requestLoggerMiddleware(asyncLogger *core.AsyncRequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if asyncLogger == nil {
			return
		}

		entry := &models.RequestLog{
			CreatedAt:  start,
			RequestID:  c.GetHeader("X-Request-ID"),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			Model:      c.GetString("model"),
			Backend:    c.GetString("backend"),
			Stream:     c.GetBool("stream"),
			StatusCode: c.Writer.Status(),
			Duration:   time.Since(start).Milliseconds(),
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			entry.ErrorMsg = core.Truncate(c.Errors.String(), 512)
		}

		asyncLogger.Log(entry)
	}
}
