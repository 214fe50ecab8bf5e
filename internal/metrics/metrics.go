package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 工序创建数
	operationsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "operations_created_total",
			Help: "Total number of operations created",
		},
	)

	// 工序状态转换数
	operationTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_transitions_total",
			Help: "Total number of operation status transitions",
		},
		[]string{"from", "to"},
	)

	// 工序操作数
	operationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_actions_total",
			Help: "Total number of operation service actions",
		},
		[]string{"action", "result"}, // create/update/start/finish/... success/failure
	)

	// 批量更新处理的记录数
	batchRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_batch_records_total",
			Help: "Total number of records processed by batch updates",
		},
		[]string{"result"}, // updated, failed, dry_run
	)

	// Webhook 推送结果
	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook deliveries by status",
		},
		[]string{"status"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 工序状态分布
	operationsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "operations_by_status",
			Help: "Number of operations by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(operationsCreatedTotal)
	prometheus.MustRegister(operationTransitionsTotal)
	prometheus.MustRegister(operationActionsTotal)
	prometheus.MustRegister(batchRecordsTotal)
	prometheus.MustRegister(webhookDeliveriesTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(operationsByStatus)

	// Go 运行时指标只注册一次,已注册时忽略错误
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordOperationCreated 记录工序创建
func RecordOperationCreated() {
	operationsCreatedTotal.Inc()
}

// RecordTransition 记录状态转换
func RecordTransition(from, to string) {
	operationTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordAction 记录服务操作结果
func RecordAction(action string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	operationActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordBatch 记录批量更新结果
func RecordBatch(updated, failed int, dryRun bool) {
	if dryRun {
		batchRecordsTotal.WithLabelValues("dry_run").Add(float64(updated + failed))
		return
	}
	batchRecordsTotal.WithLabelValues("updated").Add(float64(updated))
	batchRecordsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordWebhookDelivery 记录 Webhook 推送结果
func RecordWebhookDelivery(status string) {
	webhookDeliveriesTotal.WithLabelValues(status).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateOperationsByStatus 更新工序状态分布指标
func UpdateOperationsByStatus(counts map[string]int64) {
	operationsByStatus.Reset()
	for status, count := range counts {
		operationsByStatus.WithLabelValues(status).Set(float64(count))
	}
}
