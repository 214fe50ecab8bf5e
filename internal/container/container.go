package container

import (
	"context"
	"fmt"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/api"
	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/SheetMetalConnect/api-workshop/internal/database"
	"github.com/SheetMetalConnect/api-workshop/internal/integration"
	"github.com/SheetMetalConnect/api-workshop/internal/metrics"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"github.com/SheetMetalConnect/api-workshop/internal/rules"
	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/SheetMetalConnect/api-workshop/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、服务、客户端等
type Container struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *logrus.Logger

	hub               *websocket.Hub
	eventHandler      *integration.EventHandler
	fgaClient         *auth.OpenFGAClient
	permissions       auth.PermissionChecker
	relations         *auth.CachedOpenFGAClient
	keycloakValidator *auth.KeycloakTokenValidator

	auditService     service.AuditLogService
	operationService service.OperationService
	eventService     service.EventService

	collector *metrics.Collector
	health    *api.HealthController
	slaAlerts *api.SLAAlertManager
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 1. 数据库,指数退避重试
	db, err := database.ConnectWithRetry(cfg.Database, cfg.Database.MaxRetries, time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c := &Container{cfg: cfg, db: db, logger: logger}
	if err := database.Migrate(db); err != nil {
		c.closeDB()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. OpenFGA 客户端,未配置 store 时跳过
	if cfg.OpenFGA.StoreID != "" {
		fgaClient, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			c.closeDB()
			return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = fgaClient
		c.relations = auth.NewCachedOpenFGAClient(fgaClient, auth.NewPermissionCache(cfg.OpenFGA.CacheTTL))
		c.permissions = c.relations
	} else {
		logger.Warn("OpenFGA store_id not configured, workplace roles come from tokens only")
	}

	// 3. Keycloak Token 验证器
	if cfg.Keycloak.Enabled {
		c.keycloakValidator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer, cfg.Keycloak.JWKSURL, cfg.Keycloak.ClientID)
	}

	// 4. 事件推送与实时通知
	eventRepo := repository.NewEventRepository(db)
	c.eventHandler = integration.NewEventHandler(eventRepo, cfg.Webhook, logger)
	c.hub = websocket.NewHub(logger)

	// 5. 业务服务
	c.auditService = service.NewAuditLogService(repository.NewAuditLogRepository(db))
	operationRepo := repository.NewOperationRepository(db)
	opts := []service.OperationServiceOption{
		service.WithEventRecorder(c.eventHandler),
		service.WithRoleResolver(auth.NewWorkplaceRoleResolver(c.permissions, logger)),
		service.WithLogger(logger),
		service.WithMaxReported(cfg.Batch.MaxReported),
	}
	if c.relations != nil {
		opts = append(opts, service.WithRelationWriter(c.relations))
	}
	c.operationService = service.NewOperationService(
		db,
		operationRepo,
		repository.NewStateHistoryRepository(db),
		statemachine.NewMachine(logger, integration.NewHubNotifier(c.hub)),
		rules.NewEngine(logger),
		c.auditService,
		opts...,
	)
	c.eventService = service.NewEventService(c.eventHandler, eventRepo)

	// 6. 指标与健康检查
	c.collector = metrics.NewCollector(db, operationRepo, cfg.Metrics.CollectInterval, logger)
	var fga api.HealthChecker
	if c.fgaClient != nil {
		fga = c.fgaClient
	}
	c.health = api.NewHealthController(db, fga)
	c.slaAlerts = api.NewSLAAlertManager()
	c.slaAlerts.OnAlert(func(operation string, violations []api.SLAViolation) {
		logger.WithFields(logrus.Fields{
			"operation":  operation,
			"violations": len(violations),
		}).Error("SLA alert threshold reached")
	})

	return c, nil
}

// Start 启动后台组件:WebSocket Hub、指标收集与待推送事件恢复
func (c *Container) Start(ctx context.Context) {
	go c.hub.Run(ctx)
	c.collector.Start()

	resumed, err := c.eventHandler.ResumePending(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to resume pending webhook deliveries")
	} else if resumed > 0 {
		c.logger.WithField("count", resumed).Info("Resumed pending webhook deliveries")
	}
}

// Router 构建 HTTP 路由
func (c *Container) Router() *gin.Engine {
	return api.SetupRoutes(api.RouterDeps{
		Config:           c.cfg,
		OperationService: c.operationService,
		EventService:     c.eventService,
		Health:           c.health,
		Hub:              c.hub,
		Validator:        c.keycloakValidator,
		Permissions:      c.permissions,
		SLAAlerts:        c.slaAlerts,
	})
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// OperationService 获取工序服务
func (c *Container) OperationService() service.OperationService {
	return c.operationService
}

// EventService 获取事件服务
func (c *Container) EventService() service.EventService {
	return c.eventService
}

// Health 获取健康检查控制器
func (c *Container) Health() *api.HealthController {
	return c.health
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// OpenFGAClient 获取 OpenFGA 客户端,未配置时为 nil
func (c *Container) OpenFGAClient() *auth.OpenFGAClient {
	return c.fgaClient
}

// KeycloakValidator 获取 Keycloak Token 验证器,未启用时为 nil
func (c *Container) KeycloakValidator() *auth.KeycloakTokenValidator {
	return c.keycloakValidator
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.eventHandler != nil {
		c.eventHandler.Stop()
	}
	c.closeDB()
	return nil
}

func (c *Container) closeDB() {
	if c.db == nil {
		return
	}
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
