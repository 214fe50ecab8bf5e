package model

import (
	"errors"
	"time"
)

// StateHistoryModel 工序状态变更历史数据模型
type StateHistoryModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OperationKey string    `gorm:"type:varchar(192);not null;index" json:"operation_key"`
	FromState    string    `gorm:"type:varchar(32)" json:"from_state"`
	ToState      string    `gorm:"type:varchar(32);not null" json:"to_state"`
	Event        string    `gorm:"type:varchar(32)" json:"event,omitempty"`
	Reason       string    `gorm:"type:text" json:"reason,omitempty"`
	Operator     string    `gorm:"type:varchar(64);not null" json:"operator"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (StateHistoryModel) TableName() string {
	return "state_history"
}

// Validate 验证状态历史模型
func (shm *StateHistoryModel) Validate() error {
	if shm.ID == "" {
		return errors.New("history ID is required")
	}
	if shm.OperationKey == "" {
		return errors.New("operation key is required")
	}
	if shm.ToState == "" {
		return errors.New("to state is required")
	}
	if shm.Operator == "" {
		return errors.New("operator is required")
	}
	return nil
}
