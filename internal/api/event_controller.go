package api

import (
	"net/http"

	"github.com/SheetMetalConnect/api-workshop/internal/integration"
	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/SheetMetalConnect/api-workshop/internal/utils"
	"github.com/gin-gonic/gin"
)

// EventController 工序事件控制器
type EventController struct {
	eventService service.EventService
}

// NewEventController 创建事件控制器
func NewEventController(eventService service.EventService) *EventController {
	return &EventController{
		eventService: eventService,
	}
}

// Create 记录事件
// @Summary      记录工序事件
// @Description  持久化事件并异步推送到 Webhook
// @Tags         工序事件
// @Accept       json
// @Produce      json
// @Param        request body integration.OperationEventRequest true "事件信息"
// @Success      201  {object}  Response{data=model.OperationEventModel}
// @Failure      400  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /events [post]
// @Security     BearerAuth
func (c *EventController) Create(ctx *gin.Context) {
	var req integration.OperationEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	event, err := c.eventService.Record(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Created(ctx, event)
}

// Get 获取事件
// @Summary      获取事件详情
// @Tags         工序事件
// @Produce      json
// @Param        id path string true "事件 ID"
// @Success      200  {object}  Response{data=model.OperationEventModel}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /events/{id} [get]
// @Security     BearerAuth
func (c *EventController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateEventID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid event ID", err.Error())
		return
	}

	event, err := c.eventService.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, event)
}

// List 列出事件
// @Summary      获取事件列表
// @Description  按创建时间倒序返回事件
// @Tags         工序事件
// @Produce      json
// @Param        order_no query string false "工单号"
// @Param        action_type query string false "动作类型" Enums(START, STOP, COMPLETE, REPORT_QUANTITY, FINISH)
// @Param        workplace_name query string false "工位"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "返回条数" default(100)
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /events [get]
// @Security     BearerAuth
func (c *EventController) List(ctx *gin.Context) {
	var filter service.EventListFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}
	c.list(ctx, &filter)
}

// ListByWorkplace 列出工位事件
// @Summary      获取工位事件
// @Tags         工序事件
// @Produce      json
// @Param        workplace path string true "工位"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "返回条数" default(100)
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /events/workplace/{workplace} [get]
// @Security     BearerAuth
func (c *EventController) ListByWorkplace(ctx *gin.Context) {
	workplace := ctx.Param("workplace")
	if err := utils.ValidateWorkplaceName(workplace); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid workplace name", err.Error())
		return
	}

	var filter service.EventListFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}
	filter.WorkplaceName = &workplace
	c.list(ctx, &filter)
}

func (c *EventController) list(ctx *gin.Context, filter *service.EventListFilter) {
	events, total, err := c.eventService.List(ctx.Request.Context(), filter)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, gin.H{
		"events": events,
		"total":  total,
		"skip":   filter.Skip,
	})
}
