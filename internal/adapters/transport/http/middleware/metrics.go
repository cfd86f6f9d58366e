package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/metrics"
)

// Metrics records one sample per request, labelled by route template.
func Metrics(rec metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ts := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.RecordRequest(c.Request.Method, route, c.Writer.Status(), time.Since(ts))
	}
}
