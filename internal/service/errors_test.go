package service_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SheetMetalConnect/api-workshop/internal/database"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"github.com/SheetMetalConnect/api-workshop/internal/rules"
	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// TestOperationError_Is 测试按类型匹配
func TestOperationError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &service.OperationError{
		Kind:    service.KindNotFound,
		Message: "Operation not found: WO-1/1/0010",
	})

	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.NotErrorIs(t, err, service.ErrDuplicateOperation)
	assert.Equal(t, service.KindNotFound, service.KindOf(err))
	assert.Equal(t, service.ErrorKind(""), service.KindOf(errors.New("boom")))

	inner := errors.New("driver failure")
	withCause := &service.OperationError{Kind: service.KindIntegrityViolation, Message: "x", Err: inner}
	assert.ErrorIs(t, withCause, inner)
	assert.ErrorIs(t, withCause, service.ErrIntegrityViolation)
}

func setupMockService(t *testing.T) (service.OperationService, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), database.GormConfig())
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	svc := service.NewOperationService(
		db,
		repository.NewOperationRepository(db),
		repository.NewStateHistoryRepository(db),
		statemachine.NewMachine(logger),
		rules.NewEngine(logger),
		nil,
		service.WithLogger(logger),
	)
	return svc, mock
}

// TestOperationService_IntegrityViolation 测试存储约束冲突的转换
func TestOperationService_IntegrityViolation(t *testing.T) {
	svc, mock := setupMockService(t)
	key := model.OperationKey{OrderNo: "WO-1", AssetID: 1, OperationNo: "0010"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "mes_operations"`)).
		WillReturnRows(sqlmock.NewRows([]string{"order_no", "asset_id", "operation_no", "status", "version"}).
			AddRow("WO-1", 1, "0010", "PLANNED", 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "state_history"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "mes_operations"`)).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})
	mock.ExpectRollback()

	err := svc.Delete(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrIntegrityViolation)
	assert.Equal(t, "Database integrity constraint violated during operation deletion", err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestOperationService_StorageErrorPropagates 测试未知存储错误原样向上传递
func TestOperationService_StorageErrorPropagates(t *testing.T) {
	svc, mock := setupMockService(t)
	key := model.OperationKey{OrderNo: "WO-1", AssetID: 1, OperationNo: "0010"}

	cause := errors.New("connection reset by peer")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "mes_operations"`)).WillReturnError(cause)

	_, err := svc.Get(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, service.ErrorKind(""), service.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
