package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	loggerKey       = "logger"
	requestIDHeader = "X-Request-ID"
)

// requestLogger tags every request with an id and logs its outcome
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := s.logger.With(zap.String("requestId", requestID))
		c.Set(loggerKey, logger)

		start := time.Now()
		c.Next()

		logger.Debug("Request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
