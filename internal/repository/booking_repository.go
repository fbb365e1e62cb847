package repository

import (
	"context"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// BookingRepository 预订仓储接口
type BookingRepository interface {
	Create(ctx context.Context, booking *model.BookingModel) error
	FindByID(ctx context.Context, id string) (*model.BookingModel, error)
	// FindByIDForUpdate 事务内读取并锁定
	FindByIDForUpdate(ctx context.Context, id string) (*model.BookingModel, error)
	// UpdateProgress 写入 project_progress，只供重算流程调用，返回新版本号
	UpdateProgress(ctx context.Context, id string, expectedVersion int64, pct int, at time.Time) (int64, error)
	ListIDs(ctx context.Context) ([]string, error)
	FindByParticipant(ctx context.Context, userID string) ([]*model.BookingModel, error)
}

type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository 创建预订仓储
func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, booking *model.BookingModel) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *bookingRepository) FindByID(ctx context.Context, id string) (*model.BookingModel, error) {
	var booking model.BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, notFound(err, model.EntityBooking, id)
	}
	return &booking, nil
}

func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.BookingModel, error) {
	var booking model.BookingModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, notFound(err, model.EntityBooking, id)
	}
	return &booking, nil
}

func (r *bookingRepository) UpdateProgress(ctx context.Context, id string, expectedVersion int64, pct int, at time.Time) (int64, error) {
	return updateProgress(ctx, r.db, &model.BookingModel{}, "project_progress", model.EntityBooking, id, expectedVersion, pct, at)
}

func (r *bookingRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.BookingModel{}).Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}

// FindByParticipant 查找用户作为客户或服务方参与的预订
func (r *bookingRepository) FindByParticipant(ctx context.Context, userID string) ([]*model.BookingModel, error) {
	var bookings []*model.BookingModel
	err := r.db.WithContext(ctx).
		Where("client_id = ? OR provider_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}
