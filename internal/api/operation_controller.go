package api

import (
	"net/http"
	"strconv"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/service"
	"github.com/SheetMetalConnect/api-workshop/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// OperationController 工序控制器
type OperationController struct {
	operationService service.OperationService
}

// NewOperationController 创建工序控制器
func NewOperationController(operationService service.OperationService) *OperationController {
	return &OperationController{
		operationService: operationService,
	}
}

// FinishOperationRequest 完工请求
// @Description 完工时可以同时报告最终加工数量
type FinishOperationRequest struct {
	FinalQuantity *int64 `json:"final_quantity,omitempty" example:"100" binding:"omitempty,gte=0"`
}

// ValidationResult 校验结果
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// operationKey 解析并校验路径中的工序主键,失败时写出 400 响应
func operationKey(ctx *gin.Context) (model.OperationKey, bool) {
	orderNo := ctx.Param("order_no")
	operationNo := ctx.Param("operation_no")
	assetID, err := strconv.ParseInt(ctx.Param("asset_id"), 10, 64)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid asset ID", utils.ErrInvalidAssetID.Error())
		return model.OperationKey{}, false
	}

	for _, check := range []struct {
		message string
		err     error
	}{
		{"invalid order number", utils.ValidateOrderNo(orderNo)},
		{"invalid asset ID", utils.ValidateAssetID(assetID)},
		{"invalid operation number", utils.ValidateOperationNo(operationNo)},
	} {
		if check.err != nil {
			Error(ctx, http.StatusBadRequest, check.message, check.err.Error())
			return model.OperationKey{}, false
		}
	}
	return model.OperationKey{OrderNo: orderNo, AssetID: assetID, OperationNo: operationNo}, true
}

// Create 创建工序
// @Summary      创建工序
// @Description  创建工单工序,初始状态只能是 PLANNED 或 RELEASED
// @Tags         工序管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateOperationRequest true "工序信息"
// @Success      201  {object}  Response{data=model.OperationModel}
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations [post]
// @Security     BearerAuth
func (c *OperationController) Create(ctx *gin.Context) {
	var req service.CreateOperationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.WorkplaceName != nil {
		if err := utils.ValidateWorkplaceName(*req.WorkplaceName); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid workplace name", err.Error())
			return
		}
	}

	op, err := c.operationService.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Created(ctx, op)
}

// Get 获取工序
// @Summary      获取工序详情
// @Tags         工序管理
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Success      200  {object}  Response{data=model.OperationModel}
// @Failure      404  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no} [get]
// @Security     BearerAuth
func (c *OperationController) Get(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	op, err := c.operationService.Get(ctx.Request.Context(), key)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, op)
}

// Update 部分更新工序
// @Summary      更新工序
// @Description  只写入请求中提供的字段;提供 version 时按乐观锁校验
// @Tags         工序管理
// @Accept       json
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Param        request body service.OperationPatch true "更新字段"
// @Success      200  {object}  Response{data=model.OperationModel}
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no} [patch]
// @Security     BearerAuth
func (c *OperationController) Update(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	var patch service.OperationPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	op, err := c.operationService.Update(ctx.Request.Context(), key, &patch)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, op)
}

// Delete 删除工序
// @Summary      删除工序
// @Description  已完工的工序不能删除,状态历史一并删除
// @Tags         工序管理
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no} [delete]
// @Security     BearerAuth
func (c *OperationController) Delete(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	if err := c.operationService.Delete(ctx.Request.Context(), key); err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, gin.H{"operation_key": key.String()})
}

// Start 开工
// @Summary      开工
// @Description  RELEASED 或 ON_HOLD 的工序进入 IN_PROGRESS 并记录实际开始时间
// @Tags         工序生命周期
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Success      200  {object}  Response{data=model.OperationModel}
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no}/start [post]
// @Security     BearerAuth
func (c *OperationController) Start(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	op, err := c.operationService.Start(ctx.Request.Context(), key)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, op)
}

// Finish 完工
// @Summary      完工
// @Description  IN_PROGRESS 的工序进入 FINISHED,可同时报告最终数量
// @Tags         工序生命周期
// @Accept       json
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Param        request body FinishOperationRequest false "最终数量"
// @Success      200  {object}  Response{data=model.OperationModel}
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no}/finish [post]
// @Security     BearerAuth
func (c *OperationController) Finish(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	var req FinishOperationRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}

	op, err := c.operationService.Finish(ctx.Request.Context(), key, req.FinalQuantity)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, op)
}

// Transition 状态转换
// @Summary      状态转换
// @Description  检查前置条件后转换状态,并执行转换的副作用
// @Tags         工序生命周期
// @Accept       json
// @Produce      json
// @Param        order_no path string true "工单号"
// @Param        asset_id path int true "设备 ID"
// @Param        operation_no path string true "工序号"
// @Param        request body service.TransitionRequest true "目标状态与上下文"
// @Success      200  {object}  Response{data=service.TransitionResponse}
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations/{order_no}/{asset_id}/{operation_no}/transition [post]
// @Security     BearerAuth
func (c *OperationController) Transition(ctx *gin.Context) {
	key, ok := operationKey(ctx)
	if !ok {
		return
	}

	var req service.TransitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := c.operationService.Transition(ctx.Request.Context(), key, &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, result)
}

// BatchUpdate 批量更新
// @Summary      批量更新工序
// @Description  按过滤条件批量更新,单条失败不影响其他记录;dry_run 只返回预览
// @Tags         工序管理
// @Accept       json
// @Produce      json
// @Param        request body service.BatchUpdateRequest true "过滤条件与更新字段"
// @Success      200  {object}  Response{data=service.BatchOperationResult}
// @Failure      400  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /operations/batch [post]
// @Security     BearerAuth
func (c *OperationController) BatchUpdate(ctx *gin.Context) {
	var req service.BatchUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := c.operationService.BatchUpdate(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, result)
}

// Validate 校验工序数据
// @Summary      校验工序数据
// @Description  只运行业务规则,不写库
// @Tags         工序管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateOperationRequest true "工序信息"
// @Success      200  {object}  Response{data=ValidationResult}
// @Failure      400  {object}  ErrorResponse
// @Router       /operations/validate [post]
// @Security     BearerAuth
func (c *OperationController) Validate(ctx *gin.Context) {
	// 不做 binding 校验,缺失字段由规则引擎报告
	var req service.CreateOperationRequest
	if err := json.NewDecoder(ctx.Request.Body).Decode(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	errs := c.operationService.ValidatePayload(ctx.Request.Context(), &req)
	Success(ctx, ValidationResult{Valid: len(errs) == 0, Errors: errs})
}
