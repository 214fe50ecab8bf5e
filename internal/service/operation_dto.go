package service

import (
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/rules"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
)

// CreateOperationRequest 创建工序请求
// @Description 创建工单工序的请求参数
type CreateOperationRequest struct {
	OrderNo     string `json:"order_no" example:"WO-2025-001" binding:"required"` // 工单号
	AssetID     int64  `json:"asset_id" example:"1" binding:"required,gt=0"`     // 设备 ID
	OperationNo string `json:"operation_no" example:"0010" binding:"required"`    // 工序号

	Status              *string `json:"status,omitempty" example:"PLANNED" binding:"omitempty,oneof=PLANNED RELEASED"` // 初始状态,默认 PLANNED
	ReferenceURL        *string `json:"reference_url,omitempty"`
	ActivityCode        *string `json:"activity_code,omitempty" example:"CUT"`
	ActivityDescription *string `json:"activity_description,omitempty"`
	WorkplaceName       *string `json:"workplace_name,omitempty" example:"LASER-01"`
	WorkplaceGroup      *string `json:"workplace_group,omitempty" example:"LASER"`

	QtyDesired   *int64 `json:"qty_desired,omitempty" example:"100" binding:"omitempty,gte=0"`
	QtyProcessed *int64 `json:"qty_processed,omitempty" example:"0" binding:"omitempty,gte=0"`
	QtyScrap     *int64 `json:"qty_scrap,omitempty" example:"0" binding:"omitempty,gte=0"`

	PlannedStartAt *time.Time `json:"planned_start_at,omitempty"`
	PlannedEndAt   *time.Time `json:"planned_end_at,omitempty"`
	ActualStartAt  *time.Time `json:"actual_start_at,omitempty"`
	ActualEndAt    *time.Time `json:"actual_end_at,omitempty"`

	TTargetProcessingMin *float64 `json:"t_target_processing_min,omitempty" binding:"omitempty,gte=0"`
	TTargetSetupMin      *float64 `json:"t_target_setup_min,omitempty" binding:"omitempty,gte=0"`
	TTargetLeadMin       *float64 `json:"t_target_lead_min,omitempty" binding:"omitempty,gte=0"`
	TActualProcessingMin *float64 `json:"t_actual_processing_min,omitempty" binding:"omitempty,gte=0"`
	TActualSetupMin      *float64 `json:"t_actual_setup_min,omitempty" binding:"omitempty,gte=0"`
	TActualLeadMin       *float64 `json:"t_actual_lead_min,omitempty" binding:"omitempty,gte=0"`
}

// Key 返回复合主键
func (r *CreateOperationRequest) Key() model.OperationKey {
	return model.OperationKey{OrderNo: r.OrderNo, AssetID: r.AssetID, OperationNo: r.OperationNo}
}

// InitialStatus 返回初始状态,未指定时为 PLANNED
func (r *CreateOperationRequest) InitialStatus() string {
	if r.Status == nil || *r.Status == "" {
		return string(statemachine.InitialStatus)
	}
	return *r.Status
}

// toModel 转换为数据模型
func (r *CreateOperationRequest) toModel(now time.Time) *model.OperationModel {
	changeType := model.ChangeTypeInsert
	ts := now.UnixMilli()
	return &model.OperationModel{
		OrderNo:              r.OrderNo,
		AssetID:              r.AssetID,
		OperationNo:          r.OperationNo,
		ReferenceURL:         r.ReferenceURL,
		Status:               r.InitialStatus(),
		ActivityCode:         r.ActivityCode,
		ActivityDescription:  r.ActivityDescription,
		WorkplaceName:        r.WorkplaceName,
		WorkplaceGroup:       r.WorkplaceGroup,
		QtyDesired:           r.QtyDesired,
		QtyProcessed:         r.QtyProcessed,
		QtyScrap:             r.QtyScrap,
		PlannedStartAt:       utcPtr(r.PlannedStartAt),
		PlannedEndAt:         utcPtr(r.PlannedEndAt),
		ActualStartAt:        utcPtr(r.ActualStartAt),
		ActualEndAt:          utcPtr(r.ActualEndAt),
		TTargetProcessingMin: r.TTargetProcessingMin,
		TTargetSetupMin:      r.TTargetSetupMin,
		TTargetLeadMin:       r.TTargetLeadMin,
		TActualProcessingMin: r.TActualProcessingMin,
		TActualSetupMin:      r.TActualSetupMin,
		TActualLeadMin:       r.TActualLeadMin,
		TimestampMs:          &ts,
		ChangeType:           &changeType,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// OperationPatch 部分更新,只有提供的字段会被写入
// 显式 null 清空可空字段;status 与 version 不能清空,null 等同未提供
// @Description 工序部分更新的请求参数,未提供的字段保持不变,null 清空字段
type OperationPatch struct {
	Status              Optional[string] `json:"status" swaggertype:"string" example:"RELEASED"`
	ReferenceURL        Optional[string] `json:"reference_url" swaggertype:"string"`
	ActivityCode        Optional[string] `json:"activity_code" swaggertype:"string"`
	ActivityDescription Optional[string] `json:"activity_description" swaggertype:"string"`
	WorkplaceName       Optional[string] `json:"workplace_name" swaggertype:"string"`
	WorkplaceGroup      Optional[string] `json:"workplace_group" swaggertype:"string"`

	QtyDesired   Optional[int64] `json:"qty_desired" swaggertype:"integer"`
	QtyProcessed Optional[int64] `json:"qty_processed" swaggertype:"integer"`
	QtyScrap     Optional[int64] `json:"qty_scrap" swaggertype:"integer"`

	PlannedStartAt Optional[time.Time] `json:"planned_start_at" swaggertype:"string" format:"date-time"`
	PlannedEndAt   Optional[time.Time] `json:"planned_end_at" swaggertype:"string" format:"date-time"`
	ActualStartAt  Optional[time.Time] `json:"actual_start_at" swaggertype:"string" format:"date-time"`
	ActualEndAt    Optional[time.Time] `json:"actual_end_at" swaggertype:"string" format:"date-time"`

	TTargetProcessingMin Optional[float64] `json:"t_target_processing_min" swaggertype:"number"`
	TTargetSetupMin      Optional[float64] `json:"t_target_setup_min" swaggertype:"number"`
	TTargetLeadMin       Optional[float64] `json:"t_target_lead_min" swaggertype:"number"`
	TActualProcessingMin Optional[float64] `json:"t_actual_processing_min" swaggertype:"number"`
	TActualSetupMin      Optional[float64] `json:"t_actual_setup_min" swaggertype:"number"`
	TActualLeadMin       Optional[float64] `json:"t_actual_lead_min" swaggertype:"number"`

	TimestampMs Optional[int64]  `json:"timestamp_ms" swaggertype:"integer"`
	ChangeType  Optional[string] `json:"change_type" swaggertype:"string"`

	// Version 期望的当前版本号,不匹配时返回 ConcurrentModification
	Version Optional[int64] `json:"version" swaggertype:"integer"`
}

// Fields 返回需要写入的列,不包含 version
func (p *OperationPatch) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if v, ok := p.Status.Get(); ok {
		fields["status"] = v
	}
	putOptional(fields, "reference_url", p.ReferenceURL)
	putOptional(fields, "activity_code", p.ActivityCode)
	putOptional(fields, "activity_description", p.ActivityDescription)
	putOptional(fields, "workplace_name", p.WorkplaceName)
	putOptional(fields, "workplace_group", p.WorkplaceGroup)
	putOptional(fields, "qty_desired", p.QtyDesired)
	putOptional(fields, "qty_processed", p.QtyProcessed)
	putOptional(fields, "qty_scrap", p.QtyScrap)
	putTime(fields, "planned_start_at", p.PlannedStartAt)
	putTime(fields, "planned_end_at", p.PlannedEndAt)
	putTime(fields, "actual_start_at", p.ActualStartAt)
	putTime(fields, "actual_end_at", p.ActualEndAt)
	putOptional(fields, "t_target_processing_min", p.TTargetProcessingMin)
	putOptional(fields, "t_target_setup_min", p.TTargetSetupMin)
	putOptional(fields, "t_target_lead_min", p.TTargetLeadMin)
	putOptional(fields, "t_actual_processing_min", p.TActualProcessingMin)
	putOptional(fields, "t_actual_setup_min", p.TActualSetupMin)
	putOptional(fields, "t_actual_lead_min", p.TActualLeadMin)
	putOptional(fields, "timestamp_ms", p.TimestampMs)
	putOptional(fields, "change_type", p.ChangeType)
	return fields
}

// IsEmpty 是否没有任何可写字段
func (p *OperationPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Merge 返回应用补丁后的副本,不修改原对象
func (p *OperationPatch) Merge(op *model.OperationModel) *model.OperationModel {
	merged := *op
	if v, ok := p.Status.Get(); ok {
		merged.Status = v
	}
	mergeInto(&merged.ReferenceURL, p.ReferenceURL)
	mergeInto(&merged.ActivityCode, p.ActivityCode)
	mergeInto(&merged.ActivityDescription, p.ActivityDescription)
	mergeInto(&merged.WorkplaceName, p.WorkplaceName)
	mergeInto(&merged.WorkplaceGroup, p.WorkplaceGroup)
	mergeInto(&merged.QtyDesired, p.QtyDesired)
	mergeInto(&merged.QtyProcessed, p.QtyProcessed)
	mergeInto(&merged.QtyScrap, p.QtyScrap)
	mergeTime(&merged.PlannedStartAt, p.PlannedStartAt)
	mergeTime(&merged.PlannedEndAt, p.PlannedEndAt)
	mergeTime(&merged.ActualStartAt, p.ActualStartAt)
	mergeTime(&merged.ActualEndAt, p.ActualEndAt)
	mergeInto(&merged.TTargetProcessingMin, p.TTargetProcessingMin)
	mergeInto(&merged.TTargetSetupMin, p.TTargetSetupMin)
	mergeInto(&merged.TTargetLeadMin, p.TTargetLeadMin)
	mergeInto(&merged.TActualProcessingMin, p.TActualProcessingMin)
	mergeInto(&merged.TActualSetupMin, p.TActualSetupMin)
	mergeInto(&merged.TActualLeadMin, p.TActualLeadMin)
	mergeInto(&merged.TimestampMs, p.TimestampMs)
	mergeInto(&merged.ChangeType, p.ChangeType)
	return &merged
}

func putOptional[T any](fields map[string]interface{}, column string, o Optional[T]) {
	if o.IsNull() {
		fields[column] = nil
		return
	}
	if v, ok := o.Get(); ok {
		fields[column] = v
	}
}

func putTime(fields map[string]interface{}, column string, o Optional[time.Time]) {
	if o.IsNull() {
		fields[column] = nil
		return
	}
	if v, ok := o.Get(); ok {
		fields[column] = v.UTC()
	}
}

func mergeInto[T any](dst **T, o Optional[T]) {
	if o.IsNull() {
		*dst = nil
		return
	}
	if v, ok := o.Get(); ok {
		*dst = &v
	}
}

func mergeTime(dst **time.Time, o Optional[time.Time]) {
	if o.IsNull() {
		*dst = nil
		return
	}
	if v, ok := o.Get(); ok {
		u := v.UTC()
		*dst = &u
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// TransitionRequest 状态转换请求
// @Description 带前置条件检查的状态转换请求
type TransitionRequest struct {
	NewStatus string               `json:"new_status" example:"IN_PROGRESS" binding:"required"`
	Context   statemachine.Context `json:"context,omitempty" swaggertype:"object"` // 前置条件上下文
	Reason    string               `json:"reason,omitempty"`
}

// TransitionResponse 状态转换结果
type TransitionResponse struct {
	Operation  *model.OperationModel           `json:"operation"`
	Transition *statemachine.TransitionResult `json:"transition"`
	Conditions []statemachine.ConditionResult `json:"conditions"`
}

// OperationFilterDTO 工序过滤条件
// @Description 列表与批量更新使用的过滤条件
type OperationFilterDTO struct {
	Status             []string   `json:"status,omitempty" form:"status"`
	WorkplaceName      *string    `json:"workplace_name,omitempty" form:"workplace_name"`
	WorkplaceGroup     *string    `json:"workplace_group,omitempty" form:"workplace_group"`
	ActivityCode       *string    `json:"activity_code,omitempty" form:"activity_code"`
	PlannedStartAfter  *time.Time `json:"planned_start_after,omitempty" form:"planned_start_after" time_format:"2006-01-02T15:04:05Z07:00"`
	PlannedStartBefore *time.Time `json:"planned_start_before,omitempty" form:"planned_start_before" time_format:"2006-01-02T15:04:05Z07:00"`
	HasRemainingQty    *bool      `json:"has_remaining_qty,omitempty" form:"has_remaining_qty"`
	IsOverdue          *bool      `json:"is_overdue,omitempty" form:"is_overdue"`
}

// IsEmpty 是否未设置任何条件
func (f *OperationFilterDTO) IsEmpty() bool {
	return f == nil || (len(f.Status) == 0 && f.WorkplaceName == nil && f.WorkplaceGroup == nil &&
		f.ActivityCode == nil && f.PlannedStartAfter == nil && f.PlannedStartBefore == nil &&
		f.HasRemainingQty == nil && f.IsOverdue == nil)
}

// BatchUpdateRequest 批量更新请求
// @Description 按过滤条件批量部分更新工序
type BatchUpdateRequest struct {
	Filter  OperationFilterDTO `json:"filter"`
	Updates OperationPatch     `json:"updates"`
	DryRun  bool               `json:"dry_run"`
}

// BatchFailure 单条记录的失败原因
type BatchFailure struct {
	OperationKey string    `json:"operation_key"`
	Error        string    `json:"error"`
	Kind         ErrorKind `json:"kind,omitempty"`
}

// BatchPreviewItem 试运行预览
type BatchPreviewItem struct {
	OrderNo       string `json:"order_no"`
	AssetID       int64  `json:"asset_id"`
	OperationNo   string `json:"operation_no"`
	CurrentStatus string `json:"current_status"`
	WorkplaceName string `json:"workplace_name,omitempty"`
}

// BatchOperationResult 批量操作结果
// @Description 批量更新的结果
type BatchOperationResult struct {
	DryRun      bool                   `json:"dry_run"`
	Matched     int                    `json:"matched"`
	Updated     int                    `json:"updated"`
	Failed      int                    `json:"failed"`
	Summary     string                 `json:"summary"`
	Failures    []BatchFailure         `json:"failures"`
	Preview     []BatchPreviewItem     `json:"preview,omitempty"`
	WouldUpdate map[string]interface{} `json:"would_update,omitempty" swaggertype:"object"`
}

// 汇总统计的日期范围
const (
	DateFilterToday     = "today"
	DateFilterThisWeek  = "this_week"
	DateFilterThisMonth = "this_month"
)

// SummaryRequest 汇总统计请求
type SummaryRequest struct {
	Filter     OperationFilterDTO `json:"filter"`
	DateFilter string             `json:"date_filter,omitempty" form:"date_filter" binding:"omitempty,oneof=today this_week this_month"`
}

// EfficiencyMetrics 效率统计
type EfficiencyMetrics struct {
	AverageEfficiency       *float64 `json:"average_efficiency"` // 百分比
	MeanOperationEfficiency *float64 `json:"mean_operation_efficiency"`
	TotalTargetTime         float64  `json:"total_target_time"`
	TotalActualTime         float64  `json:"total_actual_time"`
	FinishedOperations      int      `json:"finished_operations"`
}

// TimeMetrics 时间统计
type TimeMetrics struct {
	InProgressCount   int     `json:"in_progress_count"`
	OverdueCount      int     `json:"overdue_count"`
	OverduePercentage float64 `json:"overdue_percentage"`
}

// OperationSummary 工序汇总统计
type OperationSummary struct {
	TotalOperations   int               `json:"total_operations"`
	ByStatus          map[string]int    `json:"by_status"`
	ByWorkplace       map[string]int    `json:"by_workplace"`
	EfficiencyMetrics EfficiencyMetrics `json:"efficiency_metrics"`
	TimeMetrics       TimeMetrics       `json:"time_metrics"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// OperationAnalysis 工序分析结果
type OperationAnalysis struct {
	Operation        *model.OperationModel `json:"operation"`
	Metrics          rules.Metrics         `json:"metrics" swaggertype:"object"`
	Recommendations  []string              `json:"recommendations"`
	ValidationErrors []string              `json:"validation_errors"`
	Efficiency       *float64              `json:"efficiency"`
	StateDescription string                `json:"state_description"`
	ValidTransitions []string              `json:"valid_transitions"`
	IsOverdue        bool                  `json:"is_overdue"`
}
