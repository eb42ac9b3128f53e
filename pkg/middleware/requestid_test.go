package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"converso/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRequestIDEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestIDMiddleware())
	engine.Use(logger.Middleware(logger.New(logger.Config{Level: "error"})))
	return engine
}

func TestRequestIDMiddlewarePropagatesUpstreamID(t *testing.T) {
	engine := newRequestIDEngine()

	var fromGin, fromCtx string
	engine.GET("/ping", func(c *gin.Context) {
		fromGin = c.GetString("requestID")
		fromCtx = GetRequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	// One id everywhere: gin context, request context, response header
	assert.Equal(t, "abc-123", fromGin)
	assert.Equal(t, "abc-123", fromCtx)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	engine := newRequestIDEngine()

	var fromCtx string
	engine.GET("/ping", func(c *gin.Context) {
		fromCtx = GetRequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, fromCtx)
	assert.Equal(t, fromCtx, rec.Header().Get("X-Request-ID"))
}
