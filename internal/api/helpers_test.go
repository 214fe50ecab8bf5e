package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/api"
	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/SheetMetalConnect/api-workshop/internal/database"
	"github.com/SheetMetalConnect/api-workshop/internal/integration"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"github.com/SheetMetalConnect/api-workshop/internal/rules"
	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestDB 创建内存数据库并迁移
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// tickingClock 每次调用前进一秒
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// testConfig 测试配置,关闭限流
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.Tracing.Enabled = false
	return cfg
}

// setupRouter 基于内存数据库装配完整路由
func setupRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	db := setupTestDB(t)
	logger, _ := test.NewNullLogger()

	eventRepo := repository.NewEventRepository(db)
	handler := integration.NewEventHandler(eventRepo, config.WebhookConfig{}, logger)
	t.Cleanup(handler.Stop)

	clock := &tickingClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	operations := service.NewOperationService(
		db,
		repository.NewOperationRepository(db),
		repository.NewStateHistoryRepository(db),
		statemachine.NewMachine(logger),
		rules.NewEngine(logger),
		service.NewAuditLogService(repository.NewAuditLogRepository(db)),
		service.WithEventRecorder(handler),
		service.WithLogger(logger),
		service.WithClock(clock.Now),
	)

	if cfg == nil {
		cfg = testConfig()
	}
	return api.SetupRoutes(api.RouterDeps{
		Config:           cfg,
		OperationService: operations,
		EventService:     service.NewEventService(handler, eventRepo),
		Health:           api.NewHealthController(db, nil),
		SLAAlerts:        api.NewSLAAlertManager(),
	})
}

// doJSON 发送请求并返回响应
func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", "operator-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decode 解析响应体
func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// dataMap 解析统一响应并返回 data 对象
func dataMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var resp struct {
		Code int                    `json:"code"`
		Data map[string]interface{} `json:"data"`
	}
	decode(t, w, &resp)
	return resp.Data
}

func createBody(orderNo, opNo, status string) map[string]interface{} {
	return map[string]interface{}{
		"order_no":       orderNo,
		"asset_id":       1,
		"operation_no":   opNo,
		"status":         status,
		"workplace_name": "LASER-01",
		"qty_desired":    100,
	}
}
