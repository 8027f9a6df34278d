package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 JSON response
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorf("[%s] PANIC recovered on %s %s: %v\n%s",
					GetRequestID(c), c.Request.Method, c.Request.URL.Path, err, debug.Stack())

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "An unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}
