package repository

import (
	"context"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// MilestoneRepository 里程碑仓储接口
type MilestoneRepository interface {
	Create(ctx context.Context, milestone *model.MilestoneModel) error
	FindByID(ctx context.Context, id string) (*model.MilestoneModel, error)
	FindByIDForUpdate(ctx context.Context, id string) (*model.MilestoneModel, error)
	ListByBookingID(ctx context.Context, bookingID string) ([]model.MilestoneModel, error)
	// ListByBookingIDForUpdate 同 ListByBookingID，并锁定返回的行
	ListByBookingIDForUpdate(ctx context.Context, bookingID string) ([]model.MilestoneModel, error)
	// UpdateFields 写入用户可编辑字段，不包含 progress_percentage
	UpdateFields(ctx context.Context, milestone *model.MilestoneModel, expectedVersion int64) error
	// UpdateProgress 写入缓存进度，只供重算流程调用
	UpdateProgress(ctx context.Context, id string, expectedVersion int64, pct int, at time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
	// FindOrphans 查找所属预订不存在的里程碑
	FindOrphans(ctx context.Context) ([]model.MilestoneModel, error)
}

type milestoneRepository struct {
	db *gorm.DB
}

// NewMilestoneRepository 创建里程碑仓储
func NewMilestoneRepository(db *gorm.DB) MilestoneRepository {
	return &milestoneRepository{db: db}
}

func (r *milestoneRepository) Create(ctx context.Context, milestone *model.MilestoneModel) error {
	return r.db.WithContext(ctx).Create(milestone).Error
}

func (r *milestoneRepository) FindByID(ctx context.Context, id string) (*model.MilestoneModel, error) {
	var m model.MilestoneModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, model.EntityMilestone, id)
	}
	return &m, nil
}

func (r *milestoneRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.MilestoneModel, error) {
	var m model.MilestoneModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, model.EntityMilestone, id)
	}
	return &m, nil
}

func (r *milestoneRepository) ListByBookingID(ctx context.Context, bookingID string) ([]model.MilestoneModel, error) {
	var ms []model.MilestoneModel
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("order_index ASC, created_at ASC").
		Find(&ms).Error
	return ms, err
}

func (r *milestoneRepository) ListByBookingIDForUpdate(ctx context.Context, bookingID string) ([]model.MilestoneModel, error) {
	var ms []model.MilestoneModel
	err := forUpdate(r.db.WithContext(ctx)).
		Where("booking_id = ?", bookingID).
		Order("order_index ASC, created_at ASC").
		Find(&ms).Error
	return ms, err
}

func (r *milestoneRepository) UpdateFields(ctx context.Context, m *model.MilestoneModel, expectedVersion int64) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.MilestoneModel{}).
		Where("id = ? AND version = ?", m.ID, expectedVersion).
		Updates(map[string]interface{}{
			"title":       m.Title,
			"description": m.Description,
			"status":      m.Status,
			"weight":      m.Weight,
			"order_index": m.OrderIndex,
			"due_date":    m.DueDate,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("mutateMilestone", model.EntityMilestone, m.ID)
	}
	m.Version = expectedVersion + 1
	m.UpdatedAt = now
	return nil
}

func (r *milestoneRepository) UpdateProgress(ctx context.Context, id string, expectedVersion int64, pct int, at time.Time) (int64, error) {
	return updateProgress(ctx, r.db, &model.MilestoneModel{}, "progress_percentage", model.EntityMilestone, id, expectedVersion, pct, at)
}

func (r *milestoneRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.MilestoneModel{}).Error
}

func (r *milestoneRepository) FindOrphans(ctx context.Context) ([]model.MilestoneModel, error) {
	var ms []model.MilestoneModel
	err := r.db.WithContext(ctx).
		Where("booking_id NOT IN (?)", r.db.Model(&model.BookingModel{}).Select("id")).
		Find(&ms).Error
	return ms, err
}
