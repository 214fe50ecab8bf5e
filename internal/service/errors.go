package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorKind 工序服务错误类型
type ErrorKind string

const (
	KindNotFound               ErrorKind = "not_found"
	KindDuplicateOperation     ErrorKind = "duplicate_operation"
	KindInvalidQuantity        ErrorKind = "invalid_quantity"
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindIntegrityViolation     ErrorKind = "integrity_violation"
	KindValidationFailed       ErrorKind = "validation_failed"
	KindConcurrentModification ErrorKind = "concurrent_modification"
)

// OperationError 工序服务错误
type OperationError struct {
	Kind    ErrorKind
	Message string
	Details []string // 规则引擎返回的错误列表
	Err     error
}

func (e *OperationError) Error() string {
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is 按错误类型匹配,使 errors.Is(err, ErrNotFound) 可用
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// 哨兵错误,只用于 errors.Is 比较
var (
	ErrNotFound               = &OperationError{Kind: KindNotFound}
	ErrDuplicateOperation     = &OperationError{Kind: KindDuplicateOperation}
	ErrInvalidQuantity        = &OperationError{Kind: KindInvalidQuantity}
	ErrInvalidStateTransition = &OperationError{Kind: KindInvalidStateTransition}
	ErrIntegrityViolation     = &OperationError{Kind: KindIntegrityViolation}
	ErrValidationFailed       = &OperationError{Kind: KindValidationFailed}
	ErrConcurrentModification = &OperationError{Kind: KindConcurrentModification}
)

// KindOf 返回错误类型,非 OperationError 返回空字符串
func KindOf(err error) ErrorKind {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ""
}

func newError(kind ErrorKind, format string, args ...interface{}) *OperationError {
	return &OperationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(key model.OperationKey) *OperationError {
	return newError(KindNotFound, "Operation not found: %s", key)
}

func duplicateError(key model.OperationKey) *OperationError {
	return newError(KindDuplicateOperation, "Operation already exists: %s", key)
}

func invalidStateError(status, action string) *OperationError {
	return newError(KindInvalidStateTransition, "Cannot %s operation with status '%s'", action, status)
}

func validationError(details []string) *OperationError {
	return &OperationError{
		Kind:    KindValidationFailed,
		Message: "Operation validation failed: " + strings.Join(details, "; "),
		Details: details,
	}
}

func concurrentModificationError(key model.OperationKey, err error) *OperationError {
	return &OperationError{
		Kind:    KindConcurrentModification,
		Message: fmt.Sprintf("Operation %s was modified concurrently", key),
		Err:     err,
	}
}

// translateStorageError 将存储层约束冲突转换为 IntegrityViolation,其他错误原样包装
func translateStorageError(err error, action string) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	if isIntegrityError(err) {
		return &OperationError{
			Kind:    KindIntegrityViolation,
			Message: fmt.Sprintf("Database integrity constraint violated during %s", action),
			Err:     err,
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

func isIntegrityError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	// class 23: integrity constraint violation
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	// sqlite 未翻译的 CHECK/NOT NULL 约束
	return strings.Contains(err.Error(), "constraint failed")
}
