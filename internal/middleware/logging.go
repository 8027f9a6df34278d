package middleware

import (
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// Logging assigns or propagates X-Request-ID and writes one access line per request
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set(RequestIDKey, requestID)

		c.Next()

		status := c.Writer.Status()
		line := "[%s] %s %s %d %v %s"
		args := []interface{}{requestID, c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.ClientIP()}
		switch {
		case status >= 500:
			log.Errorf(line, args...)
		case status >= 400:
			log.Warningf(line, args...)
		default:
			log.Infof(line, args...)
		}
	}
}

// GetRequestID retrieves the request ID from the gin context
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		return requestID.(string)
	}
	return ""
}
