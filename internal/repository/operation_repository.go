package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict 乐观锁版本不匹配或记录已被删除
var ErrVersionConflict = errors.New("operation version conflict")

// OperationRepository 工序仓储接口
type OperationRepository interface {
	// WithTx 返回绑定到事务的仓储
	WithTx(tx *gorm.DB) OperationRepository
	FindByKey(ctx context.Context, key model.OperationKey) (*model.OperationModel, error)
	Exists(ctx context.Context, key model.OperationKey) (bool, error)
	FindPage(ctx context.Context, filter *OperationFilter, skip, limit int) ([]*model.OperationModel, error)
	FindAll(ctx context.Context, filter *OperationFilter) ([]*model.OperationModel, error)
	Count(ctx context.Context, filter *OperationFilter) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	Create(ctx context.Context, op *model.OperationModel) error
	ApplyPartialUpdate(ctx context.Context, key model.OperationKey, version int64, fields map[string]interface{}) (*model.OperationModel, error)
	Delete(ctx context.Context, key model.OperationKey) (bool, error)
}

// OperationFilter 工序查询过滤器
type OperationFilter struct {
	Statuses           []string
	WorkplaceName      *string
	WorkplaceGroup     *string // 匹配 workplace_group 或 workplace_name 前缀
	ActivityCode       *string
	PlannedStartAfter  *time.Time
	PlannedStartBefore *time.Time
	HasRemainingQty    *bool
	IsOverdue          *bool
	Now                time.Time // 逾期判断基准时间,零值时取当前时间
}

// operationRepository 工序仓储实现
type operationRepository struct {
	db *gorm.DB
}

// NewOperationRepository 创建工序仓储
func NewOperationRepository(db *gorm.DB) OperationRepository {
	return &operationRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *operationRepository) WithTx(tx *gorm.DB) OperationRepository {
	return &operationRepository{db: tx}
}

func byKey(db *gorm.DB, key model.OperationKey) *gorm.DB {
	return db.Where("order_no = ? AND asset_id = ? AND operation_no = ?", key.OrderNo, key.AssetID, key.OperationNo)
}

// FindByKey 根据复合主键查找工序
func (r *operationRepository) FindByKey(ctx context.Context, key model.OperationKey) (*model.OperationModel, error) {
	var op model.OperationModel
	if err := byKey(r.db.WithContext(ctx), key).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

// Exists 判断工序是否存在
func (r *operationRepository) Exists(ctx context.Context, key model.OperationKey) (bool, error) {
	var count int64
	err := byKey(r.db.WithContext(ctx).Model(&model.OperationModel{}), key).Count(&count).Error
	return count > 0, err
}

// FindPage 分页查询,按复合主键升序
func (r *operationRepository) FindPage(ctx context.Context, filter *OperationFilter, skip, limit int) ([]*model.OperationModel, error) {
	var ops []*model.OperationModel
	query := applyOperationFilter(r.db.WithContext(ctx).Model(&model.OperationModel{}), filter)
	if skip > 0 {
		query = query.Offset(skip)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := orderByKey(query).Find(&ops).Error
	return ops, err
}

// FindAll 查询全部匹配的工序
func (r *operationRepository) FindAll(ctx context.Context, filter *OperationFilter) ([]*model.OperationModel, error) {
	return r.FindPage(ctx, filter, 0, 0)
}

// Count 统计匹配的工序数量
func (r *operationRepository) Count(ctx context.Context, filter *OperationFilter) (int64, error) {
	var count int64
	err := applyOperationFilter(r.db.WithContext(ctx).Model(&model.OperationModel{}), filter).Count(&count).Error
	return count, err
}

// CountByStatus 按状态统计数量
func (r *operationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.OperationModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// Create 新建工序
func (r *operationRepository) Create(ctx context.Context, op *model.OperationModel) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if op.Version == 0 {
		op.Version = 1
	}
	return r.db.WithContext(ctx).Create(op).Error
}

// ApplyPartialUpdate 只更新提供的字段,并以版本号做比较交换
// version 为 0 时不做版本比较;更新成功后版本号加一
func (r *operationRepository) ApplyPartialUpdate(ctx context.Context, key model.OperationKey, version int64, fields map[string]interface{}) (*model.OperationModel, error) {
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now().UTC()

	query := byKey(r.db.WithContext(ctx).Model(&model.OperationModel{}), key)
	if version > 0 {
		query = query.Where("version = ?", version)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}
	return r.FindByKey(ctx, key)
}

// Delete 删除工序,返回是否删除了记录
func (r *operationRepository) Delete(ctx context.Context, key model.OperationKey) (bool, error) {
	result := byKey(r.db.WithContext(ctx), key).Delete(&model.OperationModel{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func orderByKey(query *gorm.DB) *gorm.DB {
	return query.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "order_no"}},
		{Column: clause.Column{Name: "asset_id"}},
		{Column: clause.Column{Name: "operation_no"}},
	}})
}

// applyOperationFilter 将过滤器转换为查询条件
func applyOperationFilter(query *gorm.DB, filter *OperationFilter) *gorm.DB {
	if filter == nil {
		return query
	}

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.WorkplaceName != nil {
		query = query.Where("workplace_name = ?", *filter.WorkplaceName)
	}
	if filter.WorkplaceGroup != nil {
		query = query.Where("(workplace_group = ? OR workplace_name LIKE ? ESCAPE '\\')",
			*filter.WorkplaceGroup, utils.EscapeLike(*filter.WorkplaceGroup)+"%")
	}
	if filter.ActivityCode != nil {
		query = query.Where("activity_code = ?", *filter.ActivityCode)
	}
	if filter.PlannedStartAfter != nil {
		query = query.Where("planned_start_at >= ?", *filter.PlannedStartAfter)
	}
	if filter.PlannedStartBefore != nil {
		query = query.Where("planned_start_at <= ?", *filter.PlannedStartBefore)
	}
	if filter.HasRemainingQty != nil {
		if *filter.HasRemainingQty {
			query = query.Where("(qty_processed IS NULL OR qty_processed < qty_desired)")
		} else {
			query = query.Where("qty_processed >= qty_desired")
		}
	}
	if filter.IsOverdue != nil {
		now := filter.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		if *filter.IsOverdue {
			query = query.Where("planned_end_at < ? AND status <> ?", now, "FINISHED")
		} else {
			query = query.Where("(planned_end_at IS NULL OR planned_end_at >= ? OR status = ?)", now, "FINISHED")
		}
	}
	return query
}
