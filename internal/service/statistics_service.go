package service

import (
	"context"
	"fmt"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const unknownWorkplace = "Unknown"

// Summary 工序汇总统计,用于看板与报表
func (s *operationService) Summary(ctx context.Context, req *SummaryRequest) (*OperationSummary, error) {
	if req == nil {
		req = &SummaryRequest{}
	}
	now := s.now()

	filter := s.toRepoFilter(&req.Filter)
	if start, ok := dateFilterStart(req.DateFilter, now); ok {
		filter.PlannedStartAfter = &start
	} else if req.DateFilter != "" {
		return nil, validationError([]string{fmt.Sprintf("Unknown date filter '%s'", req.DateFilter)})
	}

	ops, err := s.opRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations for summary: %w", err)
	}
	return summarize(ops, now), nil
}

// dateFilterStart 返回日期过滤的起始时间 (UTC)
func dateFilterStart(filter string, now time.Time) (time.Time, bool) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch filter {
	case DateFilterToday:
		return midnight, true
	case DateFilterThisWeek:
		// 周一为一周的开始
		offset := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset), true
	case DateFilterThisMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func summarize(ops []*model.OperationModel, now time.Time) *OperationSummary {
	summary := &OperationSummary{
		TotalOperations: len(ops),
		ByStatus:        map[string]int{},
		ByWorkplace:     map[string]int{},
		GeneratedAt:     now,
	}

	var targets, actuals, ratios []float64
	for _, op := range ops {
		summary.ByStatus[op.Status]++

		workplace := unknownWorkplace
		if op.WorkplaceName != nil && *op.WorkplaceName != "" {
			workplace = *op.WorkplaceName
		}
		summary.ByWorkplace[workplace]++

		switch statemachine.Status(op.Status) {
		case statemachine.StatusFinished:
			summary.EfficiencyMetrics.FinishedOperations++
			target, actual := valueOr(op.TTargetProcessingMin), valueOr(op.TActualProcessingMin)
			targets = append(targets, target)
			actuals = append(actuals, actual)
			if actual > 0 {
				ratios = append(ratios, target/actual)
			}
		case statemachine.StatusInProgress:
			summary.TimeMetrics.InProgressCount++
		}
		if op.IsOverdue(now) {
			summary.TimeMetrics.OverdueCount++
		}
	}

	if len(targets) > 0 {
		totalTarget, totalActual := floats.Sum(targets), floats.Sum(actuals)
		summary.EfficiencyMetrics.TotalTargetTime = round2(totalTarget)
		summary.EfficiencyMetrics.TotalActualTime = round2(totalActual)
		if totalActual > 0 {
			avg := round2(totalTarget / totalActual * 100)
			summary.EfficiencyMetrics.AverageEfficiency = &avg
		}
	}
	if len(ratios) > 0 {
		mean := round2(stat.Mean(ratios, nil) * 100)
		summary.EfficiencyMetrics.MeanOperationEfficiency = &mean
	}
	if summary.TotalOperations > 0 {
		summary.TimeMetrics.OverduePercentage = round2(
			float64(summary.TimeMetrics.OverdueCount) / float64(summary.TotalOperations) * 100)
	}
	return summary
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
