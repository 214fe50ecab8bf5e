package rules

import (
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
)

// Snapshot 待校验的工序视图,nil 字段表示未提供
type Snapshot struct {
	OrderNo        *string `json:"order_no,omitempty"`
	AssetID        *int64  `json:"asset_id,omitempty"`
	OperationNo    *string `json:"operation_no,omitempty"`
	Status         *string `json:"status,omitempty"`
	WorkplaceName  *string `json:"workplace_name,omitempty"`
	WorkplaceGroup *string `json:"workplace_group,omitempty"`

	QtyDesired   *int64 `json:"qty_desired,omitempty"`
	QtyProcessed *int64 `json:"qty_processed,omitempty"`
	QtyScrap     *int64 `json:"qty_scrap,omitempty"`

	PlannedStartAt *time.Time `json:"planned_start_at,omitempty"`
	PlannedEndAt   *time.Time `json:"planned_end_at,omitempty"`
	ActualStartAt  *time.Time `json:"actual_start_at,omitempty"`
	ActualEndAt    *time.Time `json:"actual_end_at,omitempty"`

	TTargetProcessingMin *float64 `json:"t_target_processing_min,omitempty"`
	TTargetSetupMin      *float64 `json:"t_target_setup_min,omitempty"`
	TTargetLeadMin       *float64 `json:"t_target_lead_min,omitempty"`
	TActualProcessingMin *float64 `json:"t_actual_processing_min,omitempty"`
	TActualSetupMin      *float64 `json:"t_actual_setup_min,omitempty"`
	TActualLeadMin       *float64 `json:"t_actual_lead_min,omitempty"`
}

type durationField struct {
	name  string
	value *float64
}

func (s Snapshot) durations() []durationField {
	return []durationField{
		{"t_target_processing_min", s.TTargetProcessingMin},
		{"t_target_setup_min", s.TTargetSetupMin},
		{"t_target_lead_min", s.TTargetLeadMin},
		{"t_actual_processing_min", s.TActualProcessingMin},
		{"t_actual_setup_min", s.TActualSetupMin},
		{"t_actual_lead_min", s.TActualLeadMin},
	}
}

// ProcessingEfficiency 目标加工时间 / 实际加工时间
func (s Snapshot) ProcessingEfficiency() (float64, bool) {
	if s.TTargetProcessingMin == nil || s.TActualProcessingMin == nil || *s.TActualProcessingMin <= 0 {
		return 0, false
	}
	return *s.TTargetProcessingMin / *s.TActualProcessingMin, true
}

// ScrapRate 报废数量 / 已加工数量
func (s Snapshot) ScrapRate() (float64, bool) {
	if s.QtyScrap == nil || s.QtyProcessed == nil || *s.QtyProcessed <= 0 {
		return 0, false
	}
	return float64(*s.QtyScrap) / float64(*s.QtyProcessed), true
}

// FromModel 由已存储的工序构造视图,主键与状态总是提供
func FromModel(op *model.OperationModel) Snapshot {
	status := op.Status
	orderNo := op.OrderNo
	operationNo := op.OperationNo
	assetID := op.AssetID
	return Snapshot{
		OrderNo:              &orderNo,
		AssetID:              &assetID,
		OperationNo:          &operationNo,
		Status:               &status,
		WorkplaceName:        op.WorkplaceName,
		WorkplaceGroup:       op.WorkplaceGroup,
		QtyDesired:           op.QtyDesired,
		QtyProcessed:         op.QtyProcessed,
		QtyScrap:             op.QtyScrap,
		PlannedStartAt:       op.PlannedStartAt,
		PlannedEndAt:         op.PlannedEndAt,
		ActualStartAt:        op.ActualStartAt,
		ActualEndAt:          op.ActualEndAt,
		TTargetProcessingMin: op.TTargetProcessingMin,
		TTargetSetupMin:      op.TTargetSetupMin,
		TTargetLeadMin:       op.TTargetLeadMin,
		TActualProcessingMin: op.TActualProcessingMin,
		TActualSetupMin:      op.TActualSetupMin,
		TActualLeadMin:       op.TActualLeadMin,
	}
}
