package middleware

import (
	"strconv"

	"epf-data/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics counts requests by route template, not by raw path.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
