package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/SheetMetalConnect/api-workshop/internal/integration"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"gorm.io/gorm"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventService 工序事件服务接口
type EventService interface {
	Record(ctx context.Context, req *integration.OperationEventRequest) (*model.OperationEventModel, error)
	Get(ctx context.Context, id string) (*model.OperationEventModel, error)
	List(ctx context.Context, filter *EventListFilter) ([]*model.OperationEventModel, int64, error)
}

// EventListFilter 事件列表过滤条件
type EventListFilter struct {
	OrderNo       *string `form:"order_no"`
	ActionType    *string `form:"action_type"`
	WorkplaceName *string `form:"workplace_name"`
	Skip          int     `form:"skip" binding:"omitempty,gte=0"`
	Limit         int     `form:"limit" binding:"omitempty,gte=0"`
}

type eventService struct {
	recorder  integration.EventRecorder
	eventRepo repository.EventRepository
}

// NewEventService 创建事件服务
func NewEventService(recorder integration.EventRecorder, eventRepo repository.EventRepository) EventService {
	return &eventService{
		recorder:  recorder,
		eventRepo: eventRepo,
	}
}

// Record 记录事件,未指定用户时使用当前认证用户
func (s *eventService) Record(ctx context.Context, req *integration.OperationEventRequest) (*model.OperationEventModel, error) {
	if !model.IsValidAction(req.ActionType) {
		return nil, validationError([]string{fmt.Sprintf("Invalid action type: %s", req.ActionType)})
	}
	if user, ok := auth.UserFromContext(ctx); ok {
		if req.UserID == "" {
			req.UserID = user.ID
		}
		if req.UserEmail == "" {
			req.UserEmail = user.Email
		}
	}
	return s.recorder.Record(ctx, req)
}

// Get 获取事件
func (s *eventService) Get(ctx context.Context, id string) (*model.OperationEventModel, error) {
	event, err := s.eventRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "Event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// List 按条件列出事件,按创建时间倒序
func (s *eventService) List(ctx context.Context, filter *EventListFilter) ([]*model.OperationEventModel, int64, error) {
	if filter == nil {
		filter = &EventListFilter{}
	}
	if filter.ActionType != nil && !model.IsValidAction(*filter.ActionType) {
		return nil, 0, validationError([]string{fmt.Sprintf("Invalid action type: %s", *filter.ActionType)})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, total, err := s.eventRepo.FindByFilter(ctx, &repository.EventFilter{
		OrderNo:       filter.OrderNo,
		ActionType:    filter.ActionType,
		WorkplaceName: filter.WorkplaceName,
	}, filter.Skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	return events, total, nil
}
