package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
)

const (
	TraceHeader = "X-Request-ID"

	maxTraceIDLen = 128
)

// TraceMiddleware adds a trace ID to the request context. A client supplied
// X-Request-ID is reused when it is short and printable, webhook retries from
// the provider keep their id across deliveries that way.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if !validTraceID(traceID) {
			traceID = uuid.NewString()
		}

		c.Set(logctx.GinTraceIDKey, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool { return r <= ' ' || r > '~' })
}
