package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/api"
	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(api.RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(api.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(api.RequestIDHeader))
	assert.Equal(t, "req-123", w.Body.String())

	// 未携带时生成
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	generated := w.Header().Get(api.RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		allowOrigin string
		credentials string
	}{
		{"允许所有源", []string{"*"}, "https://mes.example.com", "*", ""},
		{"白名单内", []string{"https://mes.example.com"}, "https://mes.example.com", "https://mes.example.com", "true"},
		{"白名单外", []string{"https://mes.example.com"}, "https://evil.example.com", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: tt.origins}))
			router.GET("/ping", okHandler)

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.allowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.credentials, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: 600}))
	router.GET("/ping", okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://mes.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestRateLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(api.RateLimitMiddleware(0.001, 2))
	router.GET("/ping", okHandler)

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1234"))

	// 其他客户端不受影响
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234"))
}

func TestClientLimiters_ReusesLimiter(t *testing.T) {
	limiters := api.NewClientLimiters(1, 1)
	first := limiters.Get("user:alice")
	assert.Same(t, first, limiters.Get("user:alice"))
	assert.NotSame(t, first, limiters.Get("user:bob"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(api.SecurityHeadersMiddleware(true))
	router.GET("/api/v1/ping", okHandler)
	router.GET("/ping", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	// 明文请求不下发 HSTS
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func TestVersionMiddleware(t *testing.T) {
	api.RegisterDeprecatedVersion(api.DeprecatedVersionInfo{
		Version:         "v0",
		DeprecationDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		SunsetDate:      time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		MigrationPath:   "/api/v1",
	})

	router := gin.New()
	router.Use(api.VersionMiddleware())
	router.GET("/api/:version/ping", func(c *gin.Context) {
		c.String(http.StatusOK, api.GetAPIVersion(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "v1", w.Body.String())
	assert.Equal(t, "v1", w.Header().Get("API-Version"))
	assert.Empty(t, w.Header().Get("X-API-Deprecated"))

	req = httptest.NewRequest(http.MethodGet, "/api/v0/ping", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "v0", w.Body.String())
	assert.Equal(t, "true", w.Header().Get("X-API-Deprecated"))
	assert.Equal(t, "2025-06-30", w.Header().Get("X-API-Sunset-Date"))
	assert.Equal(t, "/api/v1", w.Header().Get("X-API-Migration-Path"))
}

func TestCheckSLA(t *testing.T) {
	cfg := api.DefaultSLAConfig()

	assert.True(t, api.CheckSLA(api.SLAOperationQuery, 100*time.Millisecond, cfg))
	assert.False(t, api.CheckSLA(api.SLAOperationQuery, time.Second, cfg))
	assert.True(t, api.CheckSLA(api.SLAOperationBatch, 5*time.Second, cfg))
	// 未知操作不检查
	assert.True(t, api.CheckSLA("unknown", time.Hour, cfg))
}

func TestSLAAlertManager(t *testing.T) {
	manager := api.NewSLAAlertManager()
	manager.SetAlertThreshold(api.SLAOperationCreation, 2)

	var alerted []api.SLAViolation
	manager.OnAlert(func(operation string, violations []api.SLAViolation) {
		assert.Equal(t, api.SLAOperationCreation, operation)
		alerted = append(alerted, violations...)
	})

	manager.RecordViolation(api.SLAViolation{Operation: api.SLAOperationCreation, Duration: 2 * time.Second})
	assert.Empty(t, alerted)
	assert.Len(t, manager.GetViolations(api.SLAOperationCreation), 1)

	manager.RecordViolation(api.SLAViolation{Operation: api.SLAOperationCreation, Duration: 3 * time.Second})
	assert.Len(t, alerted, 2)
	// 告警后重新计数
	assert.Empty(t, manager.GetViolations(api.SLAOperationCreation))
}

func TestSLAMonitorMiddleware(t *testing.T) {
	manager := api.NewSLAAlertManager()
	manager.SetAlertThreshold(api.SLAOperationQuery, 1)

	alerts := 0
	manager.OnAlert(func(string, []api.SLAViolation) { alerts++ })

	cfg := api.DefaultSLAConfig()
	cfg.QueryMaxTime = time.Nanosecond

	router := gin.New()
	router.Use(api.SLAMonitorMiddleware(cfg, manager))
	router.GET("/api/v1/operations", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})
	router.GET("/health", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 0, alerts)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/operations", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 1, alerts)
}

func TestSetupRoutes_Middleware(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/states", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))
	assert.Equal(t, "v1", w.Header().Get("API-Version"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 1
	router := setupRouter(t, cfg)

	w := doJSON(t, router, http.MethodGet, "/api/v1/states", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/states", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 健康检查不限流
	w = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
