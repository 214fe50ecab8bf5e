package database_test

import (
	"testing"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/SheetMetalConnect/api-workshop/internal/database"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestBuildDSN 测试 DSN 构建
func TestBuildDSN(t *testing.T) {
	dsn := database.BuildDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "mes", Password: "secret", DBName: "mes", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=mes password=secret dbname=mes sslmode=disable", dsn)
}

// TestGetPoolConfig 测试连接池默认值
func TestGetPoolConfig(t *testing.T) {
	pool := database.GetPoolConfig(config.DatabaseConfig{MaxOpenConns: 50})
	assert.Equal(t, 50, pool.MaxOpenConns)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 3600, pool.ConnMaxLifetime)
	assert.Equal(t, 600, pool.ConnMaxIdleTime)
}

// TestDialector 测试方言选择
func TestDialector(t *testing.T) {
	d, err := database.Dialector(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = database.Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func connectSQLite(t *testing.T) *gorm.DB {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// TestMigrateSQLite 测试 SQLite 迁移
func TestMigrateSQLite(t *testing.T) {
	db := connectSQLite(t)
	require.NoError(t, database.Migrate(db))
	// 重复迁移是幂等的
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"mes_operations", "state_history", "operation_events", "audit_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	now := time.Now().UTC()
	op := &model.OperationModel{
		OrderNo: "WO-1", AssetID: 1, OperationNo: "0010", Status: "PLANNED",
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(op).Error)

	dup := *op
	err := db.Create(&dup).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

// TestCheckHealth 测试健康检查
func TestCheckHealth(t *testing.T) {
	assert.False(t, database.CheckHealth(nil))
	db := connectSQLite(t)
	assert.True(t, database.CheckHealth(db))
}

// TestConnectWithRetry 测试重试连接
func TestConnectWithRetry(t *testing.T) {
	db, err := database.ConnectWithRetry(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, 2, time.Millisecond, nil)
	require.NoError(t, err)
	assert.True(t, database.CheckHealth(db))

	_, err = database.ConnectWithRetry(config.DatabaseConfig{Driver: "oracle"}, 2, time.Millisecond, nil)
	assert.Error(t, err)
}
