package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/progenxxx/hris-sub006/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus 记录状态已被其他人修改
	ErrStaleStatus = errors.New("record status has changed")
)

// RecordRepository 记录仓储接口
type RecordRepository interface {
	CreateBatch(ctx context.Context, records []*model.RecordModel) error
	FindByID(ctx context.Context, kind, id string) (*model.RecordModel, error)
	FindByIDs(ctx context.Context, kind string, ids []string) ([]*model.RecordModel, error)
	FindByFilter(ctx context.Context, filter *RecordFilter) ([]*model.RecordModel, error)
	Update(ctx context.Context, record *model.RecordModel) error
	UpdateStatus(ctx context.Context, change StatusChange) error
	BulkUpdateStatus(ctx context.Context, changes []StatusChange) error
	Delete(ctx context.Context, kind, id string) error
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

// RecordFilter 记录查询过滤器
type RecordFilter struct {
	Kind       string
	Status     *string
	Department *string
	CreatedBy  *string
	From       *time.Time
	To         *time.Time
}

// StatusChange 一次条件状态更新,仅当当前状态仍为 From 时生效
type StatusChange struct {
	ID         string
	Kind       string
	From       string
	To         string
	Remarks    string
	StartAt    *time.Time
	EndAt      *time.Time
	ApprovedBy string
	ApprovedAt *time.Time
	History    *model.StateHistoryModel
}

// StatusCount 按类型和状态统计
type StatusCount struct {
	Kind   string
	Status string
	Count  int64
}

// recordRepository 记录仓储实现
type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建记录仓储
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

// CreateBatch 在同一事务中创建多条记录及其参与人
func (r *recordRepository) CreateBatch(ctx context.Context, records []*model.RecordModel) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				return err
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("failed to create record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// FindByID 根据 ID 查找记录
func (r *recordRepository) FindByID(ctx context.Context, kind, id string) (*model.RecordModel, error) {
	var rec model.RecordModel
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id = ? AND kind = ?", id, kind).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByIDs 批量查找,缺失的 ID 不报错
func (r *recordRepository) FindByIDs(ctx context.Context, kind string, ids []string) ([]*model.RecordModel, error) {
	var recs []*model.RecordModel
	if len(ids) == 0 {
		return recs, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("kind = ? AND id IN ?", kind, ids).
		Find(&recs).Error
	return recs, err
}

// FindByFilter 根据过滤器查找记录,按开始时间倒序
func (r *recordRepository) FindByFilter(ctx context.Context, filter *RecordFilter) ([]*model.RecordModel, error) {
	var recs []*model.RecordModel
	query := r.db.WithContext(ctx).Model(&model.RecordModel{}).Preload("Participants")

	if filter != nil {
		if filter.Kind != "" {
			query = query.Where("kind = ?", filter.Kind)
		}
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.Department != nil {
			query = query.Where("department = ?", *filter.Department)
		}
		if filter.CreatedBy != nil {
			query = query.Where("created_by = ?", *filter.CreatedBy)
		}
		if filter.From != nil {
			query = query.Where("start_at >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("start_at <= ?", *filter.To)
		}
	}

	err := query.Order("start_at DESC").Order("id").Find(&recs).Error
	return recs, err
}

// Update 更新记录字段并整体替换参与人
func (r *recordRepository) Update(ctx context.Context, record *model.RecordModel) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.RecordModel{}).
			Where("id = ? AND kind = ?", record.ID, record.Kind).
			Select("title", "employee_name", "department", "location", "organizer", "purpose",
				"start_at", "end_at", "remarks", "attributes", "updated_at").
			Updates(record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("record_id = ?", record.ID).Delete(&model.ParticipantModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear participants: %w", err)
		}
		if len(record.Participants) > 0 {
			if err := tx.Create(&record.Participants).Error; err != nil {
				return fmt.Errorf("failed to save participants: %w", err)
			}
		}
		return nil
	})
}

// UpdateStatus 条件更新状态并写入状态历史
func (r *recordRepository) UpdateStatus(ctx context.Context, change StatusChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyStatusChange(tx, change)
	})
}

// BulkUpdateStatus 批量条件更新,任一记录失败则整体回滚
func (r *recordRepository) BulkUpdateStatus(ctx context.Context, changes []StatusChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			if err := applyStatusChange(tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyStatusChange(tx *gorm.DB, c StatusChange) error {
	updates := map[string]interface{}{
		"status":     c.To,
		"remarks":    c.Remarks,
		"updated_at": time.Now(),
	}
	if c.StartAt != nil {
		updates["start_at"] = *c.StartAt
	}
	if c.EndAt != nil {
		updates["end_at"] = *c.EndAt
	}
	if c.ApprovedAt != nil {
		updates["approved_at"] = *c.ApprovedAt
		updates["approved_by"] = c.ApprovedBy
	}

	res := tx.Model(&model.RecordModel{}).
		Where("id = ? AND kind = ? AND status = ?", c.ID, c.Kind, c.From).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update status of %s: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrStaleStatus, c.ID)
	}

	if c.History != nil {
		if err := c.History.Validate(); err != nil {
			return err
		}
		if err := tx.Create(c.History).Error; err != nil {
			return fmt.Errorf("failed to save state history: %w", err)
		}
	}
	return nil
}

// Delete 删除记录及其参与人
func (r *recordRepository) Delete(ctx context.Context, kind, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_id = ?", id).Delete(&model.ParticipantModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND kind = ?", id, kind).Delete(&model.RecordModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CountByStatus 统计各类型各状态的记录数
func (r *recordRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&model.RecordModel{}).
		Select("kind, status, COUNT(*) AS count").
		Group("kind, status").
		Scan(&counts).Error
	return counts, err
}
