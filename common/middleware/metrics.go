package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
)

// RequestMetrics is the part of the CloudWatch client the middleware needs.
type RequestMetrics interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, name string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, name string, d time.Duration, dimensions map[string]string) error
}

// MetricsMiddleware records count, latency and error class per route. Sends
// happen off the request path.
func MetricsMiddleware(metrics RequestMetrics, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil || !metrics.IsEnabled() || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Route":   route,
			"Status":  statusCodeToRange(status),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = metrics.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
			_ = metrics.RecordLatency(ctx, awspkg.MetricHTTPLatency, latency, dims)
			if status >= 500 {
				_ = metrics.RecordCount(ctx, awspkg.MetricHTTP5xx, dims)
			} else if status >= 400 {
				_ = metrics.RecordCount(ctx, awspkg.MetricHTTP4xx, dims)
			}
		}()
	}
}

func statusCodeToRange(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return string(rune('0'+code/100)) + "xx"
}
