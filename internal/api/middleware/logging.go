package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/pkg/logger"
)

// LoggingMiddleware logs failed requests individually and summarises
// successful ones in batches
func LoggingMiddleware(log *logger.BatchLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		log.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), logrus.Fields{
			"client_ip":     c.ClientIP(),
			"request_id":    c.GetString("request_id"),
			"user_agent":    c.Request.UserAgent(),
			"error_message": c.Errors.ByType(gin.ErrorTypePrivate).String(),
		})
	}
}
