package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// SLA 监控的操作类型
const (
	SLAOperationCreation   = "operation_creation"
	SLAOperationLifecycle  = "operation_lifecycle"
	SLAOperationQuery      = "operation_query"
	SLAOperationBatch      = "batch_update"
	SLAOperationStatistics = "statistics"
)

// SLAConfig SLA 配置
type SLAConfig struct {
	CreationMaxTime   time.Duration // 创建工序
	LifecycleMaxTime  time.Duration // start/finish/transition/update
	QueryMaxTime      time.Duration // 单条与列表查询
	BatchMaxTime      time.Duration // 批量更新
	StatisticsMaxTime time.Duration // 汇总与分析
}

// DefaultSLAConfig 返回默认 SLA 配置
func DefaultSLAConfig() *SLAConfig {
	return &SLAConfig{
		CreationMaxTime:   time.Second,
		LifecycleMaxTime:  time.Second,
		QueryMaxTime:      500 * time.Millisecond,
		BatchMaxTime:      10 * time.Second,
		StatisticsMaxTime: 2 * time.Second,
	}
}

// slaOperation 按路由模板判断操作类型,未知路由返回空字符串
func slaOperation(method, route string) string {
	const prefix = "/api/v1/operations"
	if !strings.HasPrefix(route, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(route, prefix)

	switch {
	case rest == "" && method == http.MethodPost:
		return SLAOperationCreation
	case rest == "/batch":
		return SLAOperationBatch
	case rest == "/summary" || strings.HasSuffix(rest, "/analysis"):
		return SLAOperationStatistics
	case method == http.MethodGet:
		return SLAOperationQuery
	case strings.HasSuffix(rest, "/start"), strings.HasSuffix(rest, "/finish"),
		strings.HasSuffix(rest, "/transition"), method == http.MethodPatch:
		return SLAOperationLifecycle
	}
	return ""
}

// Expected 返回操作的期望响应时间,0 表示不检查
func (cfg *SLAConfig) Expected(operation string) time.Duration {
	switch operation {
	case SLAOperationCreation:
		return cfg.CreationMaxTime
	case SLAOperationLifecycle:
		return cfg.LifecycleMaxTime
	case SLAOperationQuery:
		return cfg.QueryMaxTime
	case SLAOperationBatch:
		return cfg.BatchMaxTime
	case SLAOperationStatistics:
		return cfg.StatisticsMaxTime
	default:
		return 0
	}
}

// CheckSLA 检查 SLA
func CheckSLA(operation string, duration time.Duration, cfg *SLAConfig) bool {
	expected := cfg.Expected(operation)
	return expected == 0 || duration <= expected
}

// SLAViolation SLA 违反记录
type SLAViolation struct {
	Operation string
	Duration  time.Duration
	Expected  time.Duration
	Timestamp time.Time
	Path      string
	Method    string
}

// SLAAlertManager SLA 告警管理器
// 同一操作累计违反次数达到阈值时触发回调并重新计数
type SLAAlertManager struct {
	violations     map[string][]SLAViolation
	thresholds     map[string]int
	alertCallbacks []func(string, []SLAViolation)
	mu             sync.Mutex
}

// NewSLAAlertManager 创建 SLA 告警管理器
func NewSLAAlertManager() *SLAAlertManager {
	return &SLAAlertManager{
		violations: make(map[string][]SLAViolation),
		thresholds: make(map[string]int),
	}
}

// RecordViolation 记录 SLA 违反
func (m *SLAAlertManager) RecordViolation(violation SLAViolation) {
	m.mu.Lock()
	op := violation.Operation
	m.violations[op] = append(m.violations[op], violation)

	threshold := m.thresholds[op]
	if threshold <= 0 || len(m.violations[op]) < threshold {
		m.mu.Unlock()
		return
	}
	batch := m.violations[op]
	m.violations[op] = nil
	callbacks := append([]func(string, []SLAViolation){}, m.alertCallbacks...)
	m.mu.Unlock()

	for _, callback := range callbacks {
		callback(op, batch)
	}
}

// SetAlertThreshold 设置告警阈值
func (m *SLAAlertManager) SetAlertThreshold(operation string, threshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[operation] = threshold
}

// OnAlert 注册告警回调
func (m *SLAAlertManager) OnAlert(callback func(string, []SLAViolation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertCallbacks = append(m.alertCallbacks, callback)
}

// GetViolations 获取尚未触发告警的违反记录
func (m *SLAAlertManager) GetViolations(operation string) []SLAViolation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SLAViolation(nil), m.violations[operation]...)
}

// SLAMonitorMiddleware SLA 监控中间件,alertManager 可以为 nil
func SLAMonitorMiddleware(cfg *SLAConfig, alertManager *SLAAlertManager) gin.HandlerFunc {
	if cfg == nil {
		cfg = DefaultSLAConfig()
	}

	return func(c *gin.Context) {
		start := time.Now()
		operation := slaOperation(c.Request.Method, c.FullPath())

		c.Next()

		duration := time.Since(start)
		if operation == "" || CheckSLA(operation, duration, cfg) {
			return
		}

		violation := SLAViolation{
			Operation: operation,
			Duration:  duration,
			Expected:  cfg.Expected(operation),
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
			Method:    c.Request.Method,
		}
		GetLogger().WithField("request_id", c.GetString("request_id")).
			WithField("operation", operation).
			WithField("duration", duration.String()).
			Warn("SLA violated")
		if alertManager != nil {
			alertManager.RecordViolation(violation)
		}
	}
}
