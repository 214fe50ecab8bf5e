package api

import (
	"errors"
	"net/http"

	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/gin-gonic/gin"
)

// Response 统一响应格式
// @Description 统一响应格式,包含状态码、消息和数据
type Response struct {
	Code    int         `json:"code" example:"0"`          // 状态码: 0 表示成功,非 0 表示失败
	Message string      `json:"message" example:"success"` // 响应消息
	Data    interface{} `json:"data"`                      // 响应数据
}

// ErrorResponse 错误响应格式
// @Description 错误响应格式,包含错误码、错误类型、错误消息和规则引擎返回的错误列表
type ErrorResponse struct {
	Code    int      `json:"code" example:"422"`
	Message string   `json:"message" example:"Operation validation failed"`
	Type    string   `json:"type,omitempty" example:"validation_failed"` // 错误类型
	Detail  string   `json:"detail,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// PaginatedResponse 分页响应
// @Description 分页响应格式,包含数据列表和分页信息
type PaginatedResponse struct {
	Code       int            `json:"code" example:"0"`
	Message    string         `json:"message" example:"success"`
	Data       interface{}    `json:"data"`       // 数据列表
	Pagination PaginationInfo `json:"pagination"` // 分页信息
}

// PaginationInfo 分页信息
// @Description 分页信息,包含当前页码、每页数量、总记录数和总页数
type PaginationInfo struct {
	Page      int   `json:"page" example:"1"`
	PageSize  int   `json:"page_size" example:"50"`
	Total     int64 `json:"total" example:"100"`
	TotalPage int   `json:"total_page" example:"2"`
}

// NewPaginationInfo 计算总页数
func NewPaginationInfo(page, pageSize int, total int64) PaginationInfo {
	totalPage := 0
	if pageSize > 0 {
		totalPage = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PaginationInfo{Page: page, PageSize: pageSize, Total: total, TotalPage: totalPage}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string, detail string) {
	statusCode := http.StatusInternalServerError
	if code >= 400 && code < 600 {
		statusCode = code
	}

	c.JSON(statusCode, ErrorResponse{
		Code:    code,
		Message: message,
		Detail:  detail,
	})
}

// Paginated 分页响应
func Paginated(c *gin.Context, data interface{}, pagination PaginationInfo) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Code:       0,
		Message:    "success",
		Data:       data,
		Pagination: pagination,
	})
}

// StatusForKind 错误类型对应的 HTTP 状态码
func StatusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindDuplicateOperation, service.KindConcurrentModification:
		return http.StatusConflict
	case service.KindInvalidQuantity, service.KindInvalidStateTransition, service.KindValidationFailed:
		return http.StatusUnprocessableEntity
	case service.KindIntegrityViolation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError 将服务层错误写入响应
// 未知错误只返回通用消息,原始错误记录到日志
func HandleServiceError(c *gin.Context, err error) {
	var opErr *service.OperationError
	if !errors.As(err, &opErr) {
		GetLogger().WithError(err).WithField("request_id", c.GetString("request_id")).Error("Unhandled service error")
		Error(c, http.StatusInternalServerError, "internal server error", "")
		return
	}

	status := StatusForKind(opErr.Kind)
	c.JSON(status, ErrorResponse{
		Code:    status,
		Message: opErr.Message,
		Type:    string(opErr.Kind),
		Errors:  opErr.Details,
	})
}
