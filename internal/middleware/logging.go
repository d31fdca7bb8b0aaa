package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one entry per request. Query strings are left out: they may carry codes.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  status,
			"latency": time.Since(start).Truncate(time.Microsecond).String(),
			"ip":      c.ClientIP(),
		})
		if id, ok := c.Get(CtxUserID); ok {
			entry = entry.WithField("user_id", id)
		}
		switch {
		case status >= 500:
			entry.Error("[http] request")
		case status >= 400:
			entry.Warn("[http] request")
		default:
			entry.Info("[http] request")
		}
	}
}
