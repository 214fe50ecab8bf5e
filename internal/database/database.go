package database

import (
	"context"
	"fmt"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置,未配置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pool := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pool.MaxIdleConns == 0 {
		pool.MaxIdleConns = 10
	}
	if pool.MaxOpenConns == 0 {
		pool.MaxOpenConns = 100
	}
	if pool.ConnMaxLifetime == 0 {
		pool.ConnMaxLifetime = 3600
	}
	if pool.ConnMaxIdleTime == 0 {
		pool.ConnMaxIdleTime = 600
	}
	return pool
}

// Dialector 根据驱动选择 gorm 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(BuildDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// GormConfig 统一的 gorm 配置
// TranslateError 打开后唯一键/外键/检查约束错误会被翻译为 gorm 哨兵错误
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// sqlite 单写者
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接(指数退避)
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration, log *logrus.Logger) (*gorm.DB, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			if !CheckHealth(db) {
				err = fmt.Errorf("database ping failed")
			} else {
				return db, nil
			}
		}

		if log != nil {
			log.WithError(err).WithField("attempt", i+1).Warn("Database connection failed")
		}
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb,手动建表
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		if err := db.AutoMigrate(
			&model.OperationModel{},
			&model.StateHistoryModel{},
			&model.OperationEventModel{},
			&model.AuditLogModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createSQLiteTables 为 SQLite 手动创建表(TEXT 替代 jsonb)
func createSQLiteTables(db *gorm.DB) error {
	statements := []struct {
		table string
		ddl   string
	}{
		{"mes_operations", `
		CREATE TABLE IF NOT EXISTS mes_operations (
			order_no VARCHAR(64) NOT NULL,
			asset_id INTEGER NOT NULL,
			operation_no VARCHAR(32) NOT NULL,
			reference_url TEXT,
			status VARCHAR(32) NOT NULL,
			activity_code VARCHAR(64),
			activity_description TEXT,
			workplace_name VARCHAR(128),
			workplace_group VARCHAR(128),
			qty_desired INTEGER,
			qty_processed INTEGER,
			qty_scrap INTEGER,
			planned_start_at DATETIME,
			planned_end_at DATETIME,
			actual_start_at DATETIME,
			actual_end_at DATETIME,
			t_target_processing_min REAL,
			t_target_setup_min REAL,
			t_target_lead_min REAL,
			t_actual_processing_min REAL,
			t_actual_setup_min REAL,
			t_actual_lead_min REAL,
			timestamp_ms INTEGER,
			change_type VARCHAR(16),
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (order_no, asset_id, operation_no),
			CHECK (asset_id > 0)
		)`},
		{"state_history", `
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			operation_key VARCHAR(192) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			event VARCHAR(32),
			reason TEXT,
			operator VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL
		)`},
		{"operation_events", `
		CREATE TABLE IF NOT EXISTS operation_events (
			id VARCHAR(64) PRIMARY KEY,
			action_type VARCHAR(32) NOT NULL,
			order_no VARCHAR(64) NOT NULL,
			asset_id INTEGER NOT NULL,
			operation_no VARCHAR(32) NOT NULL,
			workplace_name VARCHAR(128),
			user_id VARCHAR(64) NOT NULL,
			user_email VARCHAR(255),
			operation_data TEXT,
			webhook_status VARCHAR(16) NOT NULL DEFAULT 'pending',
			webhook_success BOOLEAN,
			webhook_response TEXT,
			error_message TEXT,
			retry_count INTEGER DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
		{"audit_logs", `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(192) NOT NULL,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)`},
	}

	for _, s := range statements {
		if err := db.Exec(s.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.table, err)
		}
	}
	return nil
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name string
		ddl  string
	}{
		{"idx_operations_status", "CREATE INDEX IF NOT EXISTS idx_operations_status ON mes_operations(status)"},
		{"idx_operations_workplace", "CREATE INDEX IF NOT EXISTS idx_operations_workplace ON mes_operations(workplace_name)"},
		{"idx_operations_activity", "CREATE INDEX IF NOT EXISTS idx_operations_activity ON mes_operations(activity_code)"},
		{"idx_operations_planned_start", "CREATE INDEX IF NOT EXISTS idx_operations_planned_start ON mes_operations(planned_start_at)"},
		{"idx_operations_planned_end", "CREATE INDEX IF NOT EXISTS idx_operations_planned_end ON mes_operations(planned_end_at)"},
		{"idx_history_operation_key", "CREATE INDEX IF NOT EXISTS idx_history_operation_key ON state_history(operation_key)"},
		{"idx_history_created_at", "CREATE INDEX IF NOT EXISTS idx_history_created_at ON state_history(created_at)"},
		{"idx_events_order_no", "CREATE INDEX IF NOT EXISTS idx_events_order_no ON operation_events(order_no)"},
		{"idx_events_action_type", "CREATE INDEX IF NOT EXISTS idx_events_action_type ON operation_events(action_type)"},
		{"idx_events_workplace", "CREATE INDEX IF NOT EXISTS idx_events_workplace ON operation_events(workplace_name)"},
		{"idx_events_created_at", "CREATE INDEX IF NOT EXISTS idx_events_created_at ON operation_events(created_at)"},
		{"idx_audit_resource", "CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
		{"idx_audit_user_id", "CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id)"},
		{"idx_audit_created_at", "CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at)"},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	// PostgreSQL 特定的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_data_gin ON operation_events USING GIN (operation_data)").Error; err != nil {
			return fmt.Errorf("failed to create idx_events_data_gin: %w", err)
		}
	}

	return nil
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}

// Reconnect 重新连接数据库
func Reconnect(cfg config.DatabaseConfig, oldDB *gorm.DB) (*gorm.DB, error) {
	if oldDB != nil {
		if sqlDB, err := oldDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return Connect(cfg)
}
