package api

import (
	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/SheetMetalConnect/api-workshop/internal/websocket"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config           *config.Config
	OperationService service.OperationService
	EventService     service.EventService
	Health           *HealthController
	Hub              *websocket.Hub               // 为 nil 时不注册 /ws 与 SSE
	Validator        *auth.KeycloakTokenValidator // 为 nil 时使用 X-User-* 请求头识别用户
	Permissions      auth.PermissionChecker       // 为 nil 时不做对象级授权
	SLAAlerts        *SLAAlertManager
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(VersionMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing))
	}
	router.Use(SLAMonitorMiddleware(DefaultSLAConfig(), deps.SLAAlerts))
	router.Use(ErrorHandlerMiddleware())

	// 健康检查与指标
	health := deps.Health
	if health == nil {
		health = NewHealthController(nil, nil)
	}
	router.GET("/health", health.Check)
	router.GET("/live", health.Live)
	router.GET("/ready", health.Ready)
	router.GET("/metrics", MetricsHandler())

	// 实时推送,认证在处理器内完成
	if deps.Hub != nil {
		router.GET("/ws", websocket.WebSocketHandler(deps.Hub, deps.Validator, websocket.NewUpgrader(cfg.CORS.AllowedOrigins)))
		router.GET("/sse", SSEHandler(deps.Hub, deps.Validator))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	v1 := router.Group("/api/v1")
	v1.Use(RequestContextMiddleware())
	if deps.Validator != nil {
		v1.Use(auth.KeycloakAuthMiddleware(deps.Validator))
	} else {
		v1.Use(auth.DevAuthMiddleware())
	}
	if cfg.RateLimit.Enabled {
		v1.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	// 对象级授权,关系需预先写入 OpenFGA
	var canView, canEdit gin.HandlerFunc = noopMiddleware, noopMiddleware
	if deps.Permissions != nil && cfg.OpenFGA.Enforce {
		canView = auth.PermissionMiddleware(deps.Permissions, auth.ObjectTypeOperation, auth.RelationViewer, auth.OperationObjectID)
		canEdit = auth.PermissionMiddleware(deps.Permissions, auth.ObjectTypeOperation, auth.RelationEditor, auth.OperationObjectID)
	}

	compressed := gzip.Gzip(gzip.DefaultCompression)

	if deps.OperationService != nil {
		operationController := NewOperationController(deps.OperationService)
		queryController := NewQueryController(deps.OperationService)

		operations := v1.Group("/operations")
		{
			operations.POST("", operationController.Create)
			operations.GET("", compressed, queryController.List)
			operations.GET("/summary", compressed, queryController.Summary)
			operations.POST("/batch", operationController.BatchUpdate)
			operations.POST("/validate", operationController.Validate)

			single := operations.Group("/:order_no/:asset_id/:operation_no")
			{
				single.GET("", canView, operationController.Get)
				single.PATCH("", canEdit, operationController.Update)
				single.DELETE("", canEdit, operationController.Delete)
				single.POST("/start", canEdit, operationController.Start)
				single.POST("/finish", canEdit, operationController.Finish)
				single.POST("/transition", canEdit, operationController.Transition)
				single.GET("/history", canView, queryController.History)
				single.GET("/analysis", canView, queryController.Analyze)
			}
		}
	}

	if deps.EventService != nil {
		eventController := NewEventController(deps.EventService)

		events := v1.Group("/events")
		{
			events.POST("", eventController.Create)
			events.GET("", compressed, eventController.List)
			events.GET("/workplace/:workplace", compressed, eventController.ListByWorkplace)
			events.GET("/:id", eventController.Get)
		}
	}

	stateController := NewStateController()
	states := v1.Group("/states")
	{
		states.GET("", stateController.List)
		states.GET("/transitions", stateController.Transitions)
		states.GET("/:status", stateController.Get)
	}

	return router
}

func noopMiddleware(c *gin.Context) {
	c.Next()
}
