package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs every request; credentials and cookies never reach the log.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log.Debug("incoming request",
			zap.String("request_id", RequestIDFrom(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("origin", c.GetHeader("Origin")),
			zap.Any("hdr", scrub(c.Request.Header)),
		)

		ts := time.Now()
		c.Next()

		latency := time.Since(ts)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", RequestIDFrom(c)),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		}

		for _, e := range c.Errors {
			if status >= http.StatusInternalServerError {
				log.Error("handler error", append(fields, zap.Error(e.Err))...)
			} else {
				log.Debug("request rejected", append(fields, zap.Error(e.Err))...)
			}
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Warn("completed", fields...)
		default:
			log.Info("completed", fields...)
		}
	}
}

func scrub(h http.Header) http.Header {
	clone := h.Clone()
	for k := range clone {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "authorization") || strings.Contains(lk, "cookie") {
			clone[k] = []string{"[redacted]"}
		}
	}
	return clone
}
