package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SheetMetalConnect/api-workshop/internal/api"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFGA bool

func (f fakeFGA) CheckHealth(context.Context) bool { return bool(f) }

func healthRouter(controller *api.HealthController) *gin.Engine {
	router := gin.New()
	router.GET("/health", controller.Check)
	router.GET("/live", controller.Live)
	router.GET("/ready", controller.Ready)
	return router
}

func TestHealthController_Check(t *testing.T) {
	tests := []struct {
		name         string
		controller   func(t *testing.T) *api.HealthController
		expectedCode int
		status       string
		checks       map[string]interface{}
	}{
		{
			name:         "未配置依赖",
			controller:   func(*testing.T) *api.HealthController { return api.NewHealthController(nil, nil) },
			expectedCode: http.StatusOK,
			status:       "healthy",
			checks:       map[string]interface{}{"database": "not configured", "openfga": "not configured"},
		},
		{
			name:         "数据库正常",
			controller:   func(t *testing.T) *api.HealthController { return api.NewHealthController(setupTestDB(t), fakeFGA(true)) },
			expectedCode: http.StatusOK,
			status:       "healthy",
			checks:       map[string]interface{}{"database": "healthy", "openfga": "healthy"},
		},
		{
			name:         "OpenFGA 不可用",
			controller:   func(t *testing.T) *api.HealthController { return api.NewHealthController(setupTestDB(t), fakeFGA(false)) },
			expectedCode: http.StatusServiceUnavailable,
			status:       "unhealthy",
			checks:       map[string]interface{}{"database": "healthy", "openfga": "unhealthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := healthRouter(tt.controller(t))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)

			var response map[string]interface{}
			decode(t, w, &response)
			assert.Equal(t, tt.status, response["status"])
			assert.Equal(t, api.ServiceName, response["service"])
			assert.Equal(t, tt.checks, response["checks"])
		})
	}
}

func TestHealthController_LiveAndReady(t *testing.T) {
	controller := api.NewHealthController(setupTestDB(t), nil)
	router := healthRouter(controller)

	for _, path := range []string{"/live", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	controller.SetShuttingDown()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// 关闭期间仍然存活
	req = httptest.NewRequest(http.MethodGet, "/live", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
