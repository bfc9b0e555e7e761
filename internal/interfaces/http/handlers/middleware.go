package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/sentineliq/riskd/pkg/logger"
)

// Middleware bundles the request-scoped gin middleware.
type Middleware struct {
	logger logger.Logger
}

// NewMiddleware creates a new Middleware.
func NewMiddleware(log logger.Logger) *Middleware {
	return &Middleware{logger: log.WithComponent("http")}
}

// RequestID assigns or propagates X-Request-ID and stores it in the request
// context for the logging layer.
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// Logger emits one structured access log line per request.
func (m *Middleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		m.logger.Info(c.Request.Context(), "http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(started)),
			logger.String("client_ip", c.ClientIP()))
	}
}
