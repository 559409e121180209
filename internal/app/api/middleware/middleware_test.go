package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
)

func TestMiddlewareChain_PropagatesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(base), AccessLogMiddleware())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = logctx.TraceID(c.Request.Context())
		logctx.FromCtx(c.Request.Context(), base).Infow("inside")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", w.Header().Get(TraceHeader))
	assert.Equal(t, 1, logs.FilterMessage("inside").FilterField(zap.String("trace_id", "trace-123")).Len())
	assert.Equal(t, 1, logs.FilterMessage("http_access").Len())
}

func TestTraceMiddleware_GeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	var seen string
	r.GET("/", func(c *gin.Context) { seen = c.GetString(logctx.GinTraceIDKey) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
}

func TestTraceMiddleware_RejectsUnusableHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	var seen string
	r.GET("/", func(c *gin.Context) { seen = c.GetString(logctx.GinTraceIDKey) })

	for _, h := range []string{"has space", strings.Repeat("a", 129), "tab\tinside"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceHeader, h)
		r.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, h, seen)
		assert.Len(t, seen, 36)
	}
}
