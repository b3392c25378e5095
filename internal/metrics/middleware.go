package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/operia/operia/internal/logging"
)

// Middleware records request counts, latency, and the in-flight gauge for
// every request. Recording is deferred so a panicking handler still shows up
// in the series with the status the recovery layer wrote.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncHTTPRequestsInFlight()

		defer func() {
			m.DecHTTPRequestsInFlight()

			endpoint := c.FullPath()
			if endpoint == "" {
				// Unmatched routes carry no template; use the raw path.
				endpoint = c.Request.URL.Path
			}
			method := c.Request.Method
			status := strconv.Itoa(c.Writer.Status())

			m.RecordHTTPRequest(endpoint, method, status)
			m.RecordRequestLatency(endpoint, method, status, time.Since(start).Seconds())

			for _, ginErr := range c.Errors {
				logger.ErrorWithContext(c.Request.Context(), "request error",
					"endpoint", endpoint,
					"method", method,
					"status", status,
					"error", ginErr.Error())
			}
		}()

		c.Next()
	}
}
