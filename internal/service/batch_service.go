package service

import (
	"context"
	"fmt"

	"github.com/SheetMetalConnect/api-workshop/internal/metrics"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BatchUpdate 按过滤条件批量更新
// 所有记录在同一事务中处理,每条记录使用独立的保存点,单条失败只回滚该记录
func (s *operationService) BatchUpdate(ctx context.Context, req *BatchUpdateRequest) (*BatchOperationResult, error) {
	if req == nil || req.Filter.IsEmpty() {
		return nil, validationError([]string{"Batch update requires at least one filter criterion"})
	}
	patch := req.Updates
	patch.Version = None[int64]()
	if patch.IsEmpty() {
		return nil, validationError([]string{"Batch update requires at least one field to update"})
	}

	result := &BatchOperationResult{
		DryRun:   req.DryRun,
		Failures: []BatchFailure{},
	}
	if req.DryRun {
		result.Preview = []BatchPreviewItem{}
		result.WouldUpdate = patch.Fields()
	}

	var changes []change
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ops, err := s.opRepo.WithTx(tx).FindAll(ctx, s.toRepoFilter(&req.Filter))
		if err != nil {
			return fmt.Errorf("failed to query operations for batch update: %w", err)
		}
		result.Matched = len(ops)

		for i, op := range ops {
			key := op.Key()
			if req.DryRun && len(result.Preview) < s.maxReported {
				result.Preview = append(result.Preview, previewOf(op))
			}

			savepoint := fmt.Sprintf("sp_%d", i)
			if !req.DryRun {
				if err := tx.SavePoint(savepoint).Error; err != nil {
					return fmt.Errorf("failed to create savepoint: %w", err)
				}
			}

			p := patch
			c, err := s.applyInTx(ctx, tx, key, &p, mutation{action: AuditActionBatchUpdate, dryRun: req.DryRun})
			if err != nil {
				if !req.DryRun {
					if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
						return fmt.Errorf("failed to roll back savepoint: %w", rbErr)
					}
				}
				result.Failed++
				if len(result.Failures) < s.maxReported {
					result.Failures = append(result.Failures, BatchFailure{
						OperationKey: key.String(),
						Error:        err.Error(),
						Kind:         KindOf(err),
					})
				}
				continue
			}

			result.Updated++
			if !req.DryRun {
				changes = append(changes, c)
			}
		}
		return nil
	})
	if err != nil {
		metrics.RecordAction(AuditActionBatchUpdate, err)
		return nil, err
	}

	result.Summary = batchSummary(result)
	metrics.RecordBatch(result.Updated, result.Failed, req.DryRun)
	metrics.RecordAction(AuditActionBatchUpdate, nil)

	for _, c := range changes {
		s.publish(ctx, AuditActionBatchUpdate, c)
	}
	s.logger.WithFields(logrus.Fields{
		"dry_run": req.DryRun,
		"matched": result.Matched,
		"updated": result.Updated,
		"failed":  result.Failed,
	}).Info("Batch update completed")
	return result, nil
}

func previewOf(op *model.OperationModel) BatchPreviewItem {
	item := BatchPreviewItem{
		OrderNo:       op.OrderNo,
		AssetID:       op.AssetID,
		OperationNo:   op.OperationNo,
		CurrentStatus: op.Status,
	}
	if op.WorkplaceName != nil {
		item.WorkplaceName = *op.WorkplaceName
	}
	return item
}

func batchSummary(r *BatchOperationResult) string {
	if r.Matched == 0 {
		return "No operations matched the filter criteria"
	}
	if r.DryRun {
		summary := fmt.Sprintf("Dry run: %d operations would be updated", r.Updated)
		if r.Failed > 0 {
			summary += fmt.Sprintf(", %d would fail", r.Failed)
		}
		return summary
	}
	summary := fmt.Sprintf("Updated %d operations", r.Updated)
	if r.Failed > 0 {
		summary += fmt.Sprintf(", %d failed", r.Failed)
	}
	return summary
}
