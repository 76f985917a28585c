package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"seqnum/pkg/logger"
)

// Logger logs one line per request. Requests on a table carry it as a field
// so contention can be traced per table.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if table := c.Param("table"); table != "" {
			fields = append(fields, "table", table)
		}

		l := log.WithContext(c.Request.Context())
		if len(c.Errors) > 0 {
			l.Warnw("http request", append(fields, "error", c.Errors.Last().Error())...)
			return
		}
		l.Infow("http request", fields...)
	}
}
