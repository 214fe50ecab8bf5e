package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"github.com/SheetMetalConnect/api-workshop/internal/rules"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// List 分页查询工序,按复合主键升序
func (s *operationService) List(ctx context.Context, filter *OperationFilterDTO, page, pageSize int) ([]*model.OperationModel, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)

	repoFilter := s.toRepoFilter(filter)
	total, err := s.opRepo.Count(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count operations: %w", err)
	}

	ops, err := s.opRepo.FindPage(ctx, repoFilter, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query operations: %w", err)
	}
	return ops, total, nil
}

// NormalizePage 返回实际使用的页码与每页数量
func NormalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// toRepoFilter 转换过滤条件,状态去重并统一大写
func (s *operationService) toRepoFilter(dto *OperationFilterDTO) *repository.OperationFilter {
	filter := &repository.OperationFilter{Now: s.now()}
	if dto == nil {
		return filter
	}

	if len(dto.Status) > 0 {
		statuses := mapset.NewSet[string]()
		for _, st := range dto.Status {
			// 支持 status=A,B 形式
			for _, part := range strings.Split(st, ",") {
				if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
					statuses.Add(part)
				}
			}
		}
		filter.Statuses = statuses.ToSlice()
		sort.Strings(filter.Statuses)
	}
	filter.WorkplaceName = dto.WorkplaceName
	filter.WorkplaceGroup = dto.WorkplaceGroup
	filter.ActivityCode = dto.ActivityCode
	filter.PlannedStartAfter = utcPtr(dto.PlannedStartAfter)
	filter.PlannedStartBefore = utcPtr(dto.PlannedStartBefore)
	filter.HasRemainingQty = dto.HasRemainingQty
	filter.IsOverdue = dto.IsOverdue
	return filter
}

// History 获取状态历史,按时间升序
func (s *operationService) History(ctx context.Context, key model.OperationKey) ([]*model.StateHistoryModel, error) {
	exists, err := s.opRepo.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if !exists {
		return nil, notFoundError(key)
	}

	histories, err := s.historyRepo.FindByOperationKey(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return histories, nil
}

// Analyze 计算工序指标与改进建议
func (s *operationService) Analyze(ctx context.Context, key model.OperationKey) (*OperationAnalysis, error) {
	op, err := s.opRepo.FindByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	snap := rules.FromModel(op)
	analysis := &OperationAnalysis{
		Operation:        op,
		Metrics:          s.engine.ComputeMetrics(snap),
		Recommendations:  s.engine.Recommend(snap),
		ValidationErrors: s.engine.Validate(snap),
		StateDescription: statemachine.Description(op.Status),
		ValidTransitions: validTargets(s.machine, op.Status),
		IsOverdue:        op.IsOverdue(s.now()),
	}
	if eff, ok := snap.ProcessingEfficiency(); ok {
		pct := round2(eff * 100)
		analysis.Efficiency = &pct
	}
	if analysis.ValidationErrors == nil {
		analysis.ValidationErrors = []string{}
	}
	return analysis, nil
}

// ValidatePayload 只运行规则引擎,不访问数据库
func (s *operationService) ValidatePayload(_ context.Context, req *CreateOperationRequest) []string {
	if req == nil {
		return []string{"Operation payload is required"}
	}
	errs := s.engine.Validate(rules.FromModel(req.toModel(s.now())))
	if errs == nil {
		errs = []string{}
	}
	return errs
}

// validTargets 返回排序后的可达状态
func validTargets(machine *statemachine.Machine, from string) []string {
	targets := machine.ValidTransitions(from).ToSlice()
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
