package utils

import (
	"regexp"
	"strings"
)

var (
	orderNoPattern     = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)
	operationNoPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	eventIDPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateOrderNo 验证工单号(路径参数)
func ValidateOrderNo(orderNo string) error {
	if strings.TrimSpace(orderNo) == "" {
		return ErrEmptyOrderNo
	}
	if len(orderNo) > 64 {
		return ErrIDTooLong
	}
	if !orderNoPattern.MatchString(orderNo) {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateOperationNo 验证工序号
func ValidateOperationNo(operationNo string) error {
	if strings.TrimSpace(operationNo) == "" {
		return ErrEmptyOperationNo
	}
	if len(operationNo) > 32 {
		return ErrIDTooLong
	}
	if !operationNoPattern.MatchString(operationNo) {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateAssetID 验证设备 ID
func ValidateAssetID(assetID int64) error {
	if assetID <= 0 {
		return ErrInvalidAssetID
	}
	return nil
}

// ValidateEventID 验证事件 ID 格式
func ValidateEventID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if !eventIDPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}
	if len(id) > 64 {
		return ErrIDTooLong
	}
	return nil
}

// ValidateWorkplaceName 验证工位名称
func ValidateWorkplaceName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}
	if len(trimmed) > 128 {
		return ErrNameTooLong
	}
	if containsDangerousChars(trimmed) {
		return ErrDangerousChars
	}
	return nil
}

// containsDangerousChars 检查字符串是否包含危险字符
func containsDangerousChars(s string) bool {
	dangerousPatterns := []string{
		"<script",
		"</script>",
		"javascript:",
		"onerror=",
		"onload=",
		"';",
		"'; --",
		"drop table",
		"delete from",
		"insert into",
		"update set",
		"union select",
		"<iframe",
		"<img",
		"<svg",
	}

	lower := strings.ToLower(s)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// 错误定义
var (
	ErrEmptyName        = &ValidationError{Code: "EMPTY_NAME", Message: "name cannot be empty"}
	ErrNameTooLong      = &ValidationError{Code: "NAME_TOO_LONG", Message: "name exceeds maximum length"}
	ErrDangerousChars   = &ValidationError{Code: "DANGEROUS_CHARS", Message: "name contains dangerous characters"}
	ErrEmptyID          = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrEmptyOrderNo     = &ValidationError{Code: "EMPTY_ORDER_NO", Message: "order number cannot be empty"}
	ErrEmptyOperationNo = &ValidationError{Code: "EMPTY_OPERATION_NO", Message: "operation number cannot be empty"}
	ErrInvalidAssetID   = &ValidationError{Code: "INVALID_ASSET_ID", Message: "asset id must be a positive integer"}
	ErrInvalidIDFormat  = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong        = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
