package repository

import (
	"context"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"gorm.io/gorm"
)

// EventRepository 工序事件仓储接口
type EventRepository interface {
	Save(ctx context.Context, event *model.OperationEventModel) error
	FindByID(ctx context.Context, id string) (*model.OperationEventModel, error)
	FindByFilter(ctx context.Context, filter *EventFilter, skip, limit int) ([]*model.OperationEventModel, int64, error)
	FindPending(ctx context.Context, limit int) ([]*model.OperationEventModel, error)
	UpdateDelivery(ctx context.Context, id string, fields map[string]interface{}) error
}

// EventFilter 工序事件查询过滤器
type EventFilter struct {
	OrderNo       *string
	ActionType    *string
	WorkplaceName *string
}

// eventRepository 事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Save 保存事件
func (r *eventRepository) Save(ctx context.Context, event *model.OperationEventModel) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByID 根据 ID 查找事件
func (r *eventRepository) FindByID(ctx context.Context, id string) (*model.OperationEventModel, error) {
	var event model.OperationEventModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByFilter 根据过滤器分页查找事件,按创建时间倒序
func (r *eventRepository) FindByFilter(ctx context.Context, filter *EventFilter, skip, limit int) ([]*model.OperationEventModel, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.OperationEventModel{})
	if filter != nil {
		if filter.OrderNo != nil {
			query = query.Where("order_no = ?", *filter.OrderNo)
		}
		if filter.ActionType != nil {
			query = query.Where("action_type = ?", *filter.ActionType)
		}
		if filter.WorkplaceName != nil {
			query = query.Where("workplace_name = ?", *filter.WorkplaceName)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []*model.OperationEventModel
	if skip > 0 {
		query = query.Offset(skip)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at DESC").Find(&events).Error
	return events, total, err
}

// FindPending 查找待推送的事件
func (r *eventRepository) FindPending(ctx context.Context, limit int) ([]*model.OperationEventModel, error) {
	var events []*model.OperationEventModel
	query := r.db.WithContext(ctx).Where("webhook_status = ?", model.WebhookStatusPending).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

// UpdateDelivery 更新推送结果字段
func (r *eventRepository) UpdateDelivery(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.OperationEventModel{}).Where("id = ?", id).Updates(fields).Error
}
