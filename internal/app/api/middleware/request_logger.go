package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
)

// RequestLoggerMiddleware attaches a logger carrying trace_id and the matched
// route to both gin.Context and the request context, and echoes the trace id.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetString(logctx.GinTraceIDKey)

		fields := []any{"trace_id", traceID}
		if route := c.FullPath(); route != "" {
			fields = append(fields, "route", route)
		}
		reqLogger := base.With(fields...)
		c.Set(logctx.GinLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(logctx.WithLogger(c.Request.Context(), reqLogger))

		if traceID != "" {
			c.Writer.Header().Set(TraceHeader, traceID)
		}
		c.Next()
	}
}
