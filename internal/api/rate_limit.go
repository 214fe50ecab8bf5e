package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// 空闲超过该时长的客户端限流器会被清除
const limiterIdleTTL = 10 * time.Minute

// ClientLimiters 按客户端划分的令牌桶
type ClientLimiters struct {
	rps      rate.Limit
	burst    int
	limiters *cache.Cache
	mu       sync.Mutex
}

// NewClientLimiters 创建按客户端限流器集合
func NewClientLimiters(rps float64, burst int) *ClientLimiters {
	return &ClientLimiters{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL*2),
	}
}

// Get 返回客户端的限流器,不存在时创建;每次访问刷新过期时间
func (l *ClientLimiters) Get(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter := rate.NewLimiter(l.rps, l.burst)
	if v, ok := l.limiters.Get(client); ok {
		limiter = v.(*rate.Limiter)
	}
	l.limiters.SetDefault(client, limiter)
	return limiter
}

// clientKey 已认证请求按用户限流,其余按 IP
func clientKey(c *gin.Context) string {
	if userID := auth.UserIDFromContext(c.Request.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware 限流中间件
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiters := NewClientLimiters(rps, burst)

	return func(c *gin.Context) {
		if !limiters.Get(clientKey(c)).Allow() {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
