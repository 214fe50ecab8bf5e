package model

import (
	"errors"
	"time"
)

// 工序事件动作类型
const (
	ActionStart          = "START"
	ActionStop           = "STOP"
	ActionComplete       = "COMPLETE"
	ActionReportQuantity = "REPORT_QUANTITY"
	ActionFinish         = "FINISH"
)

// 推送状态
const (
	WebhookStatusPending = "pending"
	WebhookStatusSuccess = "success"
	WebhookStatusFailed  = "failed"
	WebhookStatusSkipped = "skipped"
)

var validActions = map[string]bool{
	ActionStart:          true,
	ActionStop:           true,
	ActionComplete:       true,
	ActionReportQuantity: true,
	ActionFinish:         true,
}

// IsValidAction 是否为已知动作类型
func IsValidAction(action string) bool {
	return validActions[action]
}

// OperationEventModel 工序事件数据模型(只追加)
type OperationEventModel struct {
	ID              string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ActionType      string    `gorm:"type:varchar(32);not null;index" json:"action_type"`
	OrderNo         string    `gorm:"type:varchar(64);not null;index" json:"order_no"`
	AssetID         int64     `gorm:"not null" json:"asset_id"`
	OperationNo     string    `gorm:"type:varchar(32);not null" json:"operation_no"`
	WorkplaceName   string    `gorm:"type:varchar(128);index" json:"workplace_name"`
	UserID          string    `gorm:"type:varchar(64);not null" json:"user_id"`
	UserEmail       string    `gorm:"type:varchar(255)" json:"user_email,omitempty"`
	OperationData   JSONData  `gorm:"type:jsonb" json:"operation_data,omitempty" swaggertype:"object"` // 序列化后的事件数据
	WebhookStatus   string    `gorm:"type:varchar(16);not null;default:'pending'" json:"webhook_status"` // pending/success/failed/skipped
	WebhookSuccess  *bool     `json:"webhook_success,omitempty"`
	WebhookResponse *string   `gorm:"type:text" json:"webhook_response,omitempty"`
	ErrorMessage    *string   `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount      int       `gorm:"type:int;default:0" json:"retry_count"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (OperationEventModel) TableName() string {
	return "operation_events"
}

// Validate 验证事件模型
func (em *OperationEventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if !IsValidAction(em.ActionType) {
		return errors.New("invalid action type")
	}
	if em.OrderNo == "" {
		return errors.New("order number is required")
	}
	if em.OperationNo == "" {
		return errors.New("operation number is required")
	}
	if em.UserID == "" {
		return errors.New("user ID is required")
	}
	if em.WebhookStatus == "" {
		em.WebhookStatus = WebhookStatusPending
	}
	return nil
}
