package repository

import (
	"context"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"gorm.io/gorm"
)

// StateHistoryRepository 工序状态历史仓储接口
type StateHistoryRepository interface {
	WithTx(tx *gorm.DB) StateHistoryRepository
	Save(ctx context.Context, history *model.StateHistoryModel) error
	FindByOperationKey(ctx context.Context, key string) ([]*model.StateHistoryModel, error)
	DeleteByOperationKey(ctx context.Context, key string) (int64, error)
}

// stateHistoryRepository 状态历史仓储实现
type stateHistoryRepository struct {
	db *gorm.DB
}

// NewStateHistoryRepository 创建状态历史仓储
func NewStateHistoryRepository(db *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *stateHistoryRepository) WithTx(tx *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: tx}
}

// Save 保存状态历史
func (r *stateHistoryRepository) Save(ctx context.Context, history *model.StateHistoryModel) error {
	if err := history.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(history).Error
}

// FindByOperationKey 查找工序的状态历史,按时间升序
func (r *stateHistoryRepository) FindByOperationKey(ctx context.Context, key string) ([]*model.StateHistoryModel, error) {
	var histories []*model.StateHistoryModel
	err := r.db.WithContext(ctx).Where("operation_key = ?", key).Order("created_at ASC").Find(&histories).Error
	return histories, err
}

// DeleteByOperationKey 删除工序的状态历史
func (r *stateHistoryRepository) DeleteByOperationKey(ctx context.Context, key string) (int64, error) {
	result := r.db.WithContext(ctx).Where("operation_key = ?", key).Delete(&model.StateHistoryModel{})
	return result.RowsAffected, result.Error
}
