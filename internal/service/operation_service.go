package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/SheetMetalConnect/api-workshop/internal/integration"
	"github.com/SheetMetalConnect/api-workshop/internal/metrics"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"github.com/SheetMetalConnect/api-workshop/internal/rules"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OperationService 工序服务接口
type OperationService interface {
	Create(ctx context.Context, req *CreateOperationRequest) (*model.OperationModel, error)
	Get(ctx context.Context, key model.OperationKey) (*model.OperationModel, error)
	List(ctx context.Context, filter *OperationFilterDTO, page, pageSize int) ([]*model.OperationModel, int64, error)
	// Update 修改状态时只检查转换图中是否存在该边,前置条件只由 Transition 求值
	Update(ctx context.Context, key model.OperationKey, patch *OperationPatch) (*model.OperationModel, error)
	Delete(ctx context.Context, key model.OperationKey) error
	// 生命周期操作
	Start(ctx context.Context, key model.OperationKey) (*model.OperationModel, error)
	Finish(ctx context.Context, key model.OperationKey, finalQuantity *int64) (*model.OperationModel, error)
	Transition(ctx context.Context, key model.OperationKey, req *TransitionRequest) (*TransitionResponse, error)
	// 批量与统计
	BatchUpdate(ctx context.Context, req *BatchUpdateRequest) (*BatchOperationResult, error)
	Summary(ctx context.Context, req *SummaryRequest) (*OperationSummary, error)
	// 分析
	Analyze(ctx context.Context, key model.OperationKey) (*OperationAnalysis, error)
	ValidatePayload(ctx context.Context, req *CreateOperationRequest) []string
	History(ctx context.Context, key model.OperationKey) ([]*model.StateHistoryModel, error)
}

// RoleResolver 解析调用者在工位上的角色
type RoleResolver interface {
	ResolveRole(ctx context.Context, workplace string) string
}

const (
	defaultMaxReported = 10
	systemActor        = "system"
)

type operationService struct {
	db          *gorm.DB
	opRepo      repository.OperationRepository
	historyRepo repository.StateHistoryRepository
	machine     *statemachine.Machine
	engine      *rules.Engine
	auditLogSvc AuditLogService
	events      integration.EventRecorder
	roles       RoleResolver
	relations   auth.RelationWriter
	logger      *logrus.Entry
	now         func() time.Time
	maxReported int
}

// OperationServiceOption 工序服务选项
type OperationServiceOption func(*operationService)

// WithEventRecorder 设置事件记录器
func WithEventRecorder(recorder integration.EventRecorder) OperationServiceOption {
	return func(s *operationService) { s.events = recorder }
}

// WithRoleResolver 设置角色解析器,用于填充转换上下文中的 user_role
func WithRoleResolver(resolver RoleResolver) OperationServiceOption {
	return func(s *operationService) { s.roles = resolver }
}

// WithRelationWriter 设置权限关系写入器,工序的工位变化时同步 operation#workplace 元组
func WithRelationWriter(writer auth.RelationWriter) OperationServiceOption {
	return func(s *operationService) { s.relations = writer }
}

// WithLogger 设置日志
func WithLogger(logger *logrus.Logger) OperationServiceOption {
	return func(s *operationService) {
		if logger != nil {
			s.logger = logger.WithField("component", "operation_service")
		}
	}
}

// WithClock 设置时钟,测试使用
func WithClock(now func() time.Time) OperationServiceOption {
	return func(s *operationService) { s.now = now }
}

// WithMaxReported 批量操作结果中最多返回的失败与预览条数
func WithMaxReported(n int) OperationServiceOption {
	return func(s *operationService) {
		if n > 0 {
			s.maxReported = n
		}
	}
}

// NewOperationService 创建工序服务
func NewOperationService(
	db *gorm.DB,
	opRepo repository.OperationRepository,
	historyRepo repository.StateHistoryRepository,
	machine *statemachine.Machine,
	engine *rules.Engine,
	auditLogSvc AuditLogService,
	opts ...OperationServiceOption,
) OperationService {
	s := &operationService{
		db:          db,
		opRepo:      opRepo,
		historyRepo: historyRepo,
		machine:     machine,
		engine:      engine,
		auditLogSvc: auditLogSvc,
		logger:      logrus.StandardLogger().WithField("component", "operation_service"),
		now:         func() time.Time { return time.Now().UTC() },
		maxReported: defaultMaxReported,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutation 描述一次对已有工序的修改
type mutation struct {
	action string
	reason string
	dryRun bool
	// guard 在合并补丁前执行,可以修改补丁
	guard func(current *model.OperationModel, patch *OperationPatch) error
}

// change 提交后用于发布指标、审计与事件
type change struct {
	before *model.OperationModel
	after  *model.OperationModel
	fields map[string]interface{}
}

func actorFrom(ctx context.Context) string {
	if id := auth.UserIDFromContext(ctx); id != "" {
		return id
	}
	return systemActor
}

// Create 创建工序
func (s *operationService) Create(ctx context.Context, req *CreateOperationRequest) (*model.OperationModel, error) {
	if req == nil {
		return nil, validationError([]string{"Operation payload is required"})
	}
	key := req.Key()
	op := req.toModel(s.now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		opRepo := s.opRepo.WithTx(tx)

		exists, err := opRepo.Exists(ctx, key)
		if err != nil {
			return translateStorageError(err, "operation lookup")
		}
		if exists {
			return duplicateError(key)
		}

		if err := s.checkNew(op); err != nil {
			return err
		}

		if err := opRepo.Create(ctx, op); err != nil {
			return translateStorageError(err, "operation creation")
		}
		if err := s.historyRepo.WithTx(tx).Save(ctx, s.historyRow(ctx, key, "", op.Status, "create", "")); err != nil {
			return fmt.Errorf("failed to save state history: %w", err)
		}
		return nil
	})
	metrics.RecordAction(AuditActionCreate, err)
	if err != nil {
		return nil, err
	}

	metrics.RecordOperationCreated()
	s.linkWorkplace(ctx, key, nil, op.WorkplaceName)
	s.audit(ctx, AuditActionCreate, key, map[string]interface{}{"status": op.Status})
	s.logger.WithFields(logrus.Fields{"operation": key.String(), "status": op.Status}).Info("Operation created")
	return op, nil
}

// checkNew 新建工序的业务校验,全部通过前不写库
func (s *operationService) checkNew(op *model.OperationModel) error {
	status := statemachine.Status(op.Status)
	if status != statemachine.StatusPlanned && status != statemachine.StatusReleased {
		return invalidStateError(op.Status, "create")
	}
	if err := checkQuantities(op); err != nil {
		return err
	}
	if op.PlannedStartAt != nil && op.PlannedEndAt != nil && !op.PlannedStartAt.Before(*op.PlannedEndAt) {
		return newError(KindInvalidStateTransition, "Planned start time must be before end time")
	}
	if errs := s.engine.Validate(rules.FromModel(op)); len(errs) > 0 {
		return validationError(errs)
	}
	return nil
}

// checkQuantities 数量关系校验
func checkQuantities(op *model.OperationModel) error {
	if op.QtyProcessed != nil && op.QtyDesired != nil && *op.QtyProcessed > *op.QtyDesired {
		return newError(KindInvalidQuantity, "Processed quantity (%d) cannot exceed desired quantity (%d)",
			*op.QtyProcessed, *op.QtyDesired)
	}
	if op.QtyScrap != nil && op.QtyProcessed != nil && *op.QtyScrap > *op.QtyProcessed {
		return newError(KindInvalidQuantity, "Scrap quantity (%d) cannot exceed processed quantity (%d)",
			*op.QtyScrap, *op.QtyProcessed)
	}
	return nil
}

// Get 获取工序
func (s *operationService) Get(ctx context.Context, key model.OperationKey) (*model.OperationModel, error) {
	op, err := s.opRepo.FindByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// Update 部分更新工序
// 状态变化只做转换图检查,不求值前置条件,需要前置条件时使用 Transition
func (s *operationService) Update(ctx context.Context, key model.OperationKey, patch *OperationPatch) (*model.OperationModel, error) {
	if patch == nil {
		patch = &OperationPatch{}
	}
	return s.mutate(ctx, key, patch, mutation{action: AuditActionUpdate})
}

// Start 开始工序,只允许 RELEASED 或 ON_HOLD
func (s *operationService) Start(ctx context.Context, key model.OperationKey) (*model.OperationModel, error) {
	now := s.now()
	patch := &OperationPatch{
		Status:        Some(string(statemachine.StatusInProgress)),
		ActualStartAt: Some(now),
		ChangeType:    Some(model.ChangeTypeUpdate),
		TimestampMs:   Some(now.UnixMilli()),
	}
	return s.mutate(ctx, key, patch, mutation{
		action: AuditActionStart,
		guard: func(current *model.OperationModel, _ *OperationPatch) error {
			switch statemachine.Status(current.Status) {
			case statemachine.StatusReleased, statemachine.StatusOnHold:
				return nil
			}
			return invalidStateError(current.Status, "start")
		},
	})
}

// Finish 完成工序,只允许 IN_PROGRESS
func (s *operationService) Finish(ctx context.Context, key model.OperationKey, finalQuantity *int64) (*model.OperationModel, error) {
	now := s.now()
	patch := &OperationPatch{
		Status:      Some(string(statemachine.StatusFinished)),
		ActualEndAt: Some(now),
		ChangeType:  Some(model.ChangeTypeUpdate),
		TimestampMs: Some(now.UnixMilli()),
	}
	if finalQuantity != nil {
		patch.QtyProcessed = Some(*finalQuantity)
	}
	return s.mutate(ctx, key, patch, mutation{
		action: AuditActionFinish,
		guard: func(current *model.OperationModel, _ *OperationPatch) error {
			if statemachine.Status(current.Status) != statemachine.StatusInProgress {
				return invalidStateError(current.Status, "finish")
			}
			return nil
		},
	})
}

// Transition 带前置条件检查的状态转换,提交后执行副作用
func (s *operationService) Transition(ctx context.Context, key model.OperationKey, req *TransitionRequest) (*TransitionResponse, error) {
	if req == nil {
		return nil, validationError([]string{"new_status is required"})
	}
	target, err := statemachine.ParseStatus(req.NewStatus)
	if err != nil {
		return nil, &OperationError{Kind: KindInvalidStateTransition, Message: err.Error(), Err: err}
	}

	var (
		tctx       statemachine.Context
		conditions []statemachine.ConditionResult
		result     change
	)
	now := s.now()
	patch := &OperationPatch{
		Status:      Some(string(target)),
		ChangeType:  Some(model.ChangeTypeUpdate),
		TimestampMs: Some(now.UnixMilli()),
	}
	m := mutation{
		action: AuditActionTransition,
		reason: req.Reason,
		guard: func(current *model.OperationModel, p *OperationPatch) error {
			tctx = s.transitionContext(ctx, current, req)
			var err error
			conditions, err = s.machine.Evaluate(current.Status, string(target), tctx)
			if err != nil {
				return &OperationError{
					Kind:    KindInvalidStateTransition,
					Message: fmt.Sprintf("Cannot transition operation with status '%s' to '%s'", current.Status, target),
					Err:     err,
				}
			}
			var failed []string
			for _, c := range conditions {
				if !c.Passed {
					failed = append(failed, string(c.Condition))
				}
			}
			if len(failed) > 0 {
				return &OperationError{
					Kind: KindInvalidStateTransition,
					Message: fmt.Sprintf("Cannot transition operation with status '%s' to '%s': preconditions not met",
						current.Status, target),
					Details: failed,
				}
			}
			if target == statemachine.StatusInProgress && current.ActualStartAt == nil {
				p.ActualStartAt = Some(now)
			}
			if target == statemachine.StatusFinished && current.ActualEndAt == nil {
				p.ActualEndAt = Some(now)
			}
			return nil
		},
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.applyInTx(ctx, tx, key, patch, m)
		return err
	})
	metrics.RecordAction(m.action, err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, m.action, result)

	actor := actorFrom(ctx)
	transition, err := s.machine.Transition(ctx, result.before.Status, result.after.Status, tctx, actor)
	if err != nil {
		// 状态已提交,副作用执行失败不回滚
		s.logger.WithError(err).WithField("operation", key.String()).Error("Failed to run transition effects")
		transition = &statemachine.TransitionResult{
			FromState:       statemachine.Status(result.before.Status),
			ToState:         statemachine.Status(result.after.Status),
			Timestamp:       now,
			UserID:          actor,
			EffectsExecuted: []statemachine.Effect{},
		}
	}
	if conditions == nil {
		conditions = []statemachine.ConditionResult{}
	}
	return &TransitionResponse{Operation: result.after, Transition: transition, Conditions: conditions}, nil
}

// transitionContext 合并调用方上下文与工序数据
func (s *operationService) transitionContext(ctx context.Context, op *model.OperationModel, req *TransitionRequest) statemachine.Context {
	tctx := statemachine.Context{}.Merge(req.Context)

	var processed, desired float64 = 0, 1
	if op.QtyProcessed != nil {
		processed = float64(*op.QtyProcessed)
	}
	if op.QtyDesired != nil {
		desired = float64(*op.QtyDesired)
	}
	tctx["qty_processed"] = processed
	tctx["qty_desired"] = desired
	tctx["current_status"] = op.Status
	tctx[integration.ContextOperationKey] = op.Key().String()

	workplace := ""
	if op.WorkplaceName != nil {
		workplace = *op.WorkplaceName
		tctx[integration.ContextWorkplaceName] = workplace
	}
	if tctx.String("user_role") == "" && s.roles != nil {
		if role := s.roles.ResolveRole(ctx, workplace); role != "" {
			tctx["user_role"] = role
		}
	}
	return tctx
}

// Delete 删除工序及其状态历史,已完工的工序不能删除
func (s *operationService) Delete(ctx context.Context, key model.OperationKey) error {
	var (
		status    string
		workplace *string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		opRepo := s.opRepo.WithTx(tx)
		current, err := opRepo.FindByKey(ctx, key)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError(key)
		}
		if err != nil {
			return translateStorageError(err, "operation lookup")
		}
		if statemachine.Status(current.Status) == statemachine.StatusFinished {
			return invalidStateError(current.Status, "delete")
		}
		status = current.Status
		workplace = current.WorkplaceName

		if _, err := s.historyRepo.WithTx(tx).DeleteByOperationKey(ctx, key.String()); err != nil {
			return translateStorageError(err, "operation deletion")
		}
		deleted, err := opRepo.Delete(ctx, key)
		if err != nil {
			return translateStorageError(err, "operation deletion")
		}
		if !deleted {
			return notFoundError(key)
		}
		return nil
	})
	metrics.RecordAction(AuditActionDelete, err)
	if err != nil {
		return err
	}

	s.linkWorkplace(ctx, key, workplace, nil)
	s.audit(ctx, AuditActionDelete, key, map[string]interface{}{"status": status})
	s.logger.WithField("operation", key.String()).Info("Operation deleted")
	return nil
}

// mutate 在事务中修改单个工序,提交后发布结果
func (s *operationService) mutate(ctx context.Context, key model.OperationKey, patch *OperationPatch, m mutation) (*model.OperationModel, error) {
	var result change
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.applyInTx(ctx, tx, key, patch, m)
		return err
	})
	metrics.RecordAction(m.action, err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, m.action, result)
	return result.after, nil
}

// applyInTx 校验并写入补丁,状态变化时追加状态历史
// dryRun 时只执行校验,返回合并后的视图
func (s *operationService) applyInTx(ctx context.Context, tx *gorm.DB, key model.OperationKey, patch *OperationPatch, m mutation) (change, error) {
	opRepo := s.opRepo.WithTx(tx)
	current, err := opRepo.FindByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return change{}, notFoundError(key)
	}
	if err != nil {
		return change{}, translateStorageError(err, "operation lookup")
	}

	if expected, ok := patch.Version.Get(); ok && expected != current.Version {
		return change{}, concurrentModificationError(key, nil)
	}
	if m.guard != nil {
		if err := m.guard(current, patch); err != nil {
			return change{}, err
		}
	}

	if next, ok := patch.Status.Get(); ok {
		if _, err := statemachine.ParseStatus(next); err != nil {
			return change{}, &OperationError{Kind: KindInvalidStateTransition, Message: err.Error(), Err: err}
		}
		if !s.machine.IsAllowed(current.Status, next) {
			return change{}, newError(KindInvalidStateTransition, "Invalid transition from %s to %s", current.Status, next)
		}
	}

	merged := patch.Merge(current)
	if err := checkQuantities(merged); err != nil {
		return change{}, err
	}
	if errs := s.engine.Validate(rules.FromModel(merged)); len(errs) > 0 {
		return change{}, validationError(errs)
	}

	fields := patch.Fields()
	if m.dryRun || len(fields) == 0 {
		return change{before: current, after: merged, fields: fields}, nil
	}

	updated, err := opRepo.ApplyPartialUpdate(ctx, key, current.Version, fields)
	if errors.Is(err, repository.ErrVersionConflict) {
		return change{}, concurrentModificationError(key, err)
	}
	if err != nil {
		return change{}, translateStorageError(err, "operation update")
	}

	if updated.Status != current.Status {
		event := m.action
		if tr, ok := statemachine.FindTransition(statemachine.Status(current.Status), statemachine.Status(updated.Status)); ok {
			event = tr.Event
		}
		history := s.historyRow(ctx, key, current.Status, updated.Status, event, m.reason)
		if err := s.historyRepo.WithTx(tx).Save(ctx, history); err != nil {
			return change{}, fmt.Errorf("failed to save state history: %w", err)
		}
	}
	return change{before: current, after: updated, fields: fields}, nil
}

func (s *operationService) historyRow(ctx context.Context, key model.OperationKey, from, to, event, reason string) *model.StateHistoryModel {
	return &model.StateHistoryModel{
		ID:           uuid.New().String(),
		OperationKey: key.String(),
		FromState:    from,
		ToState:      to,
		Event:        event,
		Reason:       reason,
		Operator:     actorFrom(ctx),
		CreatedAt:    s.now(),
	}
}

// publish 提交后记录指标、审计与工序事件
func (s *operationService) publish(ctx context.Context, action string, c change) {
	if c.before == nil || c.after == nil {
		return
	}
	if c.before.Status != c.after.Status {
		metrics.RecordTransition(c.before.Status, c.after.Status)
	}
	key := c.after.Key()
	s.linkWorkplace(ctx, key, c.before.WorkplaceName, c.after.WorkplaceName)
	s.audit(ctx, action, key, map[string]interface{}{
		"from_status": c.before.Status,
		"to_status":   c.after.Status,
		"fields":      c.fields,
	})
	for _, actionType := range eventActions(action, c) {
		s.recordEvent(ctx, actionType, c)
	}
}

// linkWorkplace 工位变化时改写 operation#workplace 元组,失败只记录日志
func (s *operationService) linkWorkplace(ctx context.Context, key model.OperationKey, before, after *string) {
	if s.relations == nil {
		return
	}
	prev, next := derefString(before), derefString(after)
	if prev == next {
		return
	}
	log := s.logger.WithField("operation", key.String())
	if prev != "" {
		if err := s.relations.DeleteRelation(ctx, auth.WorkplaceSubject(prev), auth.RelationWorkplace, auth.ObjectTypeOperation, key.String()); err != nil {
			log.WithError(err).WithField("workplace", prev).Warn("Failed to unlink operation from workplace")
		}
	}
	if next != "" {
		if err := s.relations.SetRelation(ctx, auth.WorkplaceSubject(next), auth.RelationWorkplace, auth.ObjectTypeOperation, key.String()); err != nil {
			log.WithError(err).WithField("workplace", next).Warn("Failed to link operation to workplace")
		}
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// eventActions 根据修改内容推导需要记录的工序事件
func eventActions(action string, c change) []string {
	var actions []string
	switch action {
	case AuditActionStart:
		actions = append(actions, model.ActionStart)
	case AuditActionFinish:
		return []string{model.ActionFinish}
	default:
		if c.before.Status != c.after.Status {
			switch statemachine.Status(c.after.Status) {
			case statemachine.StatusInProgress:
				actions = append(actions, model.ActionStart)
			case statemachine.StatusOnHold:
				actions = append(actions, model.ActionStop)
			case statemachine.StatusFinished:
				actions = append(actions, model.ActionComplete)
			}
		}
	}
	if _, ok := c.fields["qty_processed"]; ok && !int64PtrEqual(c.before.QtyProcessed, c.after.QtyProcessed) {
		actions = append(actions, model.ActionReportQuantity)
	}
	return actions
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *operationService) recordEvent(ctx context.Context, actionType string, c change) {
	if s.events == nil {
		return
	}
	op := c.after
	req := &integration.OperationEventRequest{
		ActionType:  actionType,
		OrderNo:     op.OrderNo,
		AssetID:     op.AssetID,
		OperationNo: op.OperationNo,
		UserID:      actorFrom(ctx),
		OperationData: map[string]interface{}{
			"status":          op.Status,
			"previous_status": c.before.Status,
			"qty_desired":     op.QtyDesired,
			"qty_processed":   op.QtyProcessed,
			"qty_scrap":       op.QtyScrap,
			"version":         op.Version,
			"timestamp_ms":    op.TimestampMs,
		},
	}
	if op.WorkplaceName != nil {
		req.WorkplaceName = *op.WorkplaceName
	}
	if user, ok := auth.UserFromContext(ctx); ok {
		req.UserEmail = user.Email
	}
	if _, err := s.events.Record(ctx, req); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"operation":   op.Key().String(),
			"action_type": actionType,
		}).Warn("Failed to record operation event")
	}
}

func (s *operationService) audit(ctx context.Context, action string, key model.OperationKey, details interface{}) {
	if s.auditLogSvc == nil {
		return
	}
	if err := s.auditLogSvc.RecordAction(ctx, actorFrom(ctx), action, AuditResourceOperation, key.String(), details); err != nil {
		s.logger.WithError(err).WithField("operation", key.String()).Warn("Failed to record audit log")
	}
}
