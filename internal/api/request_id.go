package api

import (
	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 请求 ID 请求头
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware 读取或生成请求 ID,写入 gin 上下文与响应头
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// RequestContextMiddleware 将请求 ID、客户端 IP 与 User-Agent 写入请求 context,供审计日志使用
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestInfo(c.Request.Context(), service.RequestInfo{
			RequestID: c.GetString("request_id"),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
