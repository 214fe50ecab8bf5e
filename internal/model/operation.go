package model

import (
	"errors"
	"fmt"
	"time"
)

// 变更类型
const (
	ChangeTypeInsert = "INSERT"
	ChangeTypeUpdate = "UPDATE"
	ChangeTypeDelete = "DELETE"
)

// OperationKey 工序复合主键
type OperationKey struct {
	OrderNo     string `json:"order_no"`
	AssetID     int64  `json:"asset_id"`
	OperationNo string `json:"operation_no"`
}

// String 返回 order/asset/operation 形式
func (k OperationKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.OrderNo, k.AssetID, k.OperationNo)
}

// OperationModel 工单工序数据模型
type OperationModel struct {
	OrderNo     string `gorm:"primaryKey;type:varchar(64)" json:"order_no"`
	AssetID     int64  `gorm:"primaryKey;autoIncrement:false" json:"asset_id"`
	OperationNo string `gorm:"primaryKey;type:varchar(32)" json:"operation_no"`

	ReferenceURL        *string `gorm:"type:text" json:"reference_url,omitempty"`
	Status              string  `gorm:"type:varchar(32);not null;index" json:"status"`
	ActivityCode        *string `gorm:"type:varchar(64);index" json:"activity_code,omitempty"`
	ActivityDescription *string `gorm:"type:text" json:"activity_description,omitempty"`
	WorkplaceName       *string `gorm:"type:varchar(128);index" json:"workplace_name,omitempty"`
	WorkplaceGroup      *string `gorm:"type:varchar(128)" json:"workplace_group,omitempty"`

	QtyDesired   *int64 `json:"qty_desired,omitempty"`
	QtyProcessed *int64 `json:"qty_processed,omitempty"`
	QtyScrap     *int64 `json:"qty_scrap,omitempty"`

	PlannedStartAt *time.Time `gorm:"index" json:"planned_start_at,omitempty"`
	PlannedEndAt   *time.Time `gorm:"index" json:"planned_end_at,omitempty"`
	ActualStartAt  *time.Time `json:"actual_start_at,omitempty"`
	ActualEndAt    *time.Time `json:"actual_end_at,omitempty"`

	TTargetProcessingMin *float64 `gorm:"column:t_target_processing_min" json:"t_target_processing_min,omitempty"`
	TTargetSetupMin      *float64 `gorm:"column:t_target_setup_min" json:"t_target_setup_min,omitempty"`
	TTargetLeadMin       *float64 `gorm:"column:t_target_lead_min" json:"t_target_lead_min,omitempty"`
	TActualProcessingMin *float64 `gorm:"column:t_actual_processing_min" json:"t_actual_processing_min,omitempty"`
	TActualSetupMin      *float64 `gorm:"column:t_actual_setup_min" json:"t_actual_setup_min,omitempty"`
	TActualLeadMin       *float64 `gorm:"column:t_actual_lead_min" json:"t_actual_lead_min,omitempty"`

	TimestampMs *int64  `gorm:"column:timestamp_ms" json:"timestamp_ms,omitempty"`
	ChangeType  *string `gorm:"type:varchar(16)" json:"change_type,omitempty"`

	Version   int64     `gorm:"not null;default:1" json:"version"` // 乐观锁版本号
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

// TableName 指定表名
func (OperationModel) TableName() string {
	return "mes_operations"
}

// Key 返回复合主键
func (om *OperationModel) Key() OperationKey {
	return OperationKey{OrderNo: om.OrderNo, AssetID: om.AssetID, OperationNo: om.OperationNo}
}

// Validate 验证工序模型
func (om *OperationModel) Validate() error {
	if om.OrderNo == "" {
		return errors.New("order number is required")
	}
	if om.AssetID <= 0 {
		return errors.New("asset ID must be positive")
	}
	if om.OperationNo == "" {
		return errors.New("operation number is required")
	}
	if om.Status == "" {
		return errors.New("operation status is required")
	}
	return nil
}

// IsOverdue 计划结束时间已过且未完工
func (om *OperationModel) IsOverdue(now time.Time) bool {
	return om.PlannedEndAt != nil && om.PlannedEndAt.Before(now) && om.Status != "FINISHED"
}
