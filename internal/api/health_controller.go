package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/database"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"gorm.io/gorm"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker 外部依赖健康检查
type HealthChecker interface {
	CheckHealth(ctx context.Context) bool
}

// HealthController 健康检查控制器
// /live 与 /ready 由 healthcheck 提供,/health 返回各依赖状态的汇总
type HealthController struct {
	db           *gorm.DB
	fga          HealthChecker
	handler      healthcheck.Handler
	shuttingDown atomic.Bool
}

// NewHealthController 创建健康检查控制器,fga 为 nil 时不检查 OpenFGA
func NewHealthController(db *gorm.DB, fga HealthChecker) *HealthController {
	c := &HealthController{
		db:      db,
		fga:     fga,
		handler: healthcheck.NewHandler(),
	}

	c.handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	c.handler.AddReadinessCheck("shutdown", func() error {
		if c.shuttingDown.Load() {
			return errors.New("shutting down")
		}
		return nil
	})
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			c.handler.AddReadinessCheck("database", healthcheck.DatabasePingCheck(sqlDB, time.Second))
		}
	}
	if fga != nil {
		c.handler.AddReadinessCheck("openfga", healthcheck.Timeout(func() error {
			if !fga.CheckHealth(context.Background()) {
				return errors.New("openfga not reachable")
			}
			return nil
		}, healthCheckTimeout))
	}
	return c
}

// SetShuttingDown 标记服务正在关闭,就绪检查随即失败
func (c *HealthController) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// Live 存活检查
// @Summary 存活检查
// @Tags 健康检查
// @Success 200
// @Failure 503
// @Router /live [get]
func (c *HealthController) Live(ctx *gin.Context) {
	c.handler.LiveEndpoint(ctx.Writer, ctx.Request)
}

// Ready 就绪检查
// @Summary 就绪检查
// @Tags 健康检查
// @Success 200
// @Failure 503
// @Router /ready [get]
func (c *HealthController) Ready(ctx *gin.Context) {
	c.handler.ReadyEndpoint(ctx.Writer, ctx.Request)
}

// Check 健康检查
// @Summary 健康检查
// @Description 返回数据库与 OpenFGA 的连接状态
// @Tags 健康检查
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	if c.db != nil {
		if database.CheckHealth(c.db) {
			checks["database"] = "healthy"
		} else {
			status = "unhealthy"
			checks["database"] = "unhealthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	if c.fga != nil {
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthCheckTimeout)
		defer cancel()
		if c.fga.CheckHealth(reqCtx) {
			checks["openfga"] = "healthy"
		} else {
			status = "unhealthy"
			checks["openfga"] = "unhealthy"
		}
	} else {
		checks["openfga"] = "not configured"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"service":   ServiceName,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
