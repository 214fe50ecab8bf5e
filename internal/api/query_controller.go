package api

import (
	"net/http"

	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/gin-gonic/gin"
)

// QueryController 查询统计控制器
type QueryController struct {
	operationService service.OperationService
}

// NewQueryController 创建查询控制器
func NewQueryController(operationService service.OperationService) *QueryController {
	return &QueryController{
		operationService: operationService,
	}
}

// listQuery 分页参数
type listQuery struct {
	Page     int `form:"page" binding:"omitempty,gte=1"`
	PageSize int `form:"page_size" binding:"omitempty,gte=1"`
}

// List 列出工序
// @Summary      获取工序列表
// @Description  分页获取工序列表,按 order_no、asset_id、operation_no 升序
// @Tags         查询统计
// @Produce      json
// @Param        status query []string false "状态,可重复或逗号分隔" collectionFormat(multi)
// @Param        workplace_name query string false "工位"
// @Param        workplace_group query string false "工位组(前缀匹配)"
// @Param        activity_code query string false "工序活动代码"
// @Param        planned_start_after query string false "计划开始时间下限 (RFC3339)"
// @Param        planned_start_before query string false "计划开始时间上限 (RFC3339)"
// @Param        has_remaining_qty query bool false "是否有剩余数量"
// @Param        is_overdue query bool false "是否逾期"
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(50)
// @Success      200  {object}  PaginatedResponse{data=[]model.OperationModel}
// @Failure      400  {object}  ErrorResponse
// @Router       /operations [get]
// @Security     BearerAuth
func (c *QueryController) List(ctx *gin.Context) {
	var filter service.OperationFilterDTO
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}
	var page listQuery
	if err := ctx.ShouldBindQuery(&page); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	ops, total, err := c.operationService.List(ctx.Request.Context(), &filter, page.Page, page.PageSize)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	// 分页默认值由服务层决定,这里按实际返回回显
	p, size := service.NormalizePage(page.Page, page.PageSize)
	Paginated(ctx, ops, NewPaginationInfo(p, size, total))
}

// Summary 汇总统计
// @Summary      工序汇总统计
// @Description  按状态与工位汇总,并计算效率与逾期指标
// @Tags         查询统计
// @Produce      json
// @Param        date_filter query string false "日期范围" Enums(today, this_week, this_month)
// @Param        status query []string false "状态" collectionFormat(multi)
// @Param        workplace_name query string false "工位"
// @Param        workplace_group query string false "工位组"
// @Success      200  {object}  Response{data=service.OperationSummary}
// @Failure      400  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations/summary [get]
// @Security     BearerAuth
func (c *QueryController) Summary(ctx *gin.Context) {
	var req service.SummaryRequest
	if err := ctx.ShouldBindQuery(&req.Filter); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}
	req.DateFilter = ctx.Query("date_filter")

	summary, err := c.operationService.Summary(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, summary)
}

// History 状态历史
// @Summary      获取状态历史
// @Description  按时间顺序返回工序的状态变更记录
// @Tags         查询统计
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Success      200  {object}  Response{data=[]model.StateHistoryModel}
// @Failure      404  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no}/history [get]
// @Security     BearerAuth
func (c *QueryController) History(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	history, err := c.operationService.History(ctx.Request.Context(), key)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, history)
}

// Analyze 工序分析
// @Summary      工序分析
// @Description  返回效率指标、改进建议、规则校验结果与可转换状态
// @Tags         查询统计
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Success      200  {object}  Response{data=service.OperationAnalysis}
// @Failure      404  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no}/analysis [get]
// @Security     BearerAuth
func (c *QueryController) Analyze(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	analysis, err := c.operationService.Analyze(ctx.Request.Context(), key)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, analysis)
}
