package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/progenxxx/hris-sub006/internal/api"
	"github.com/progenxxx/hris-sub006/internal/config"
)

func newMiddlewareRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.Any("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestHTTPSRedirect(t *testing.T) {
	r := newMiddlewareRouter(api.HTTPSRedirectMiddleware(true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://hris.local/api/v1/kinds?x=1", nil))
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://hris.local/api/v1/kinds?x=1", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://hris.local/api/v1/leave", nil))
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://hris.local/api/v1/kinds", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://hris.local/health", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	off := newMiddlewareRouter(api.HTTPSRedirectMiddleware(false))
	w = httptest.NewRecorder()
	off.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://hris.local/api/v1/kinds", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := newMiddlewareRouter(api.SecurityHeadersMiddleware(true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestCORSPreflight(t *testing.T) {
	cfg := config.Default().CORS
	cfg.AllowedOrigins = []string{"https://hr.example.com"}
	r := newMiddlewareRouter(api.CORSMiddleware(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/leave", nil)
	req.Header.Set("Origin", "https://hr.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://hr.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	r := newMiddlewareRouter(api.RateLimitMiddleware(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
