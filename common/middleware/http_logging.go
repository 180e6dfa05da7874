package middleware

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/longle289/TrustAustralia/common/logger"
	"go.uber.org/zap"
)

// query parameters that are never written to logs
var redactedParams = []string{"session_id"}

// RequestLogger emits one structured line per request. Health checks are
// skipped and checkout session ids are redacted from the query.
func RequestLogger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if q := redactQuery(c.Request.URL.RawQuery); q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log := logger.For(c.Request.Context(), base)
		switch {
		case status >= 500:
			log.Error("http_request", fields...)
		case status >= 400:
			log.Warn("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for _, k := range redactedParams {
		if _, ok := values[k]; ok {
			values.Set(k, "REDACTED")
		}
	}
	return values.Encode()
}
