package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/logger"
)

const RequestIDHeader = "X-Request-Id"

// RequestLogger tags every request with an id and logs one line per request
// once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set("request_id", id)

		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}

		fields := map[string]any{
			"message":    c.Request.Method + " " + c.FullPath(),
			"id":         id,
			"remote_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"uri":        c.Request.RequestURI,
			"user_agent": c.Request.UserAgent(),
			"status":     status,
			"latency":    time.Since(start).String(),
			"bytes_out":  c.Writer.Size(),
		}
		if uid := c.GetString(userIDKey); uid != "" {
			fields["user_id"] = uid
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}
		logger.LogWithField(level, fields)
	}
}
