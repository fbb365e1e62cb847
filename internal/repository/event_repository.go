package repository

import (
	"context"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// EventRepository outbox 事件仓储接口
type EventRepository interface {
	Save(ctx context.Context, event *model.EventModel) error
	// FindPending 取出待投递事件，maxRetries 之后的失败事件不再重试
	FindPending(ctx context.Context, limit, maxRetries int) ([]*model.EventModel, error)
	FindByBookingID(ctx context.Context, bookingID string) ([]*model.EventModel, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error, maxRetries int) error
	CountByStatus(ctx context.Context, status string) (int64, error)
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
func (r *eventRepository) Save(ctx context.Context, event *model.EventModel) error {
	return r.db.WithContext(ctx).Save(event).Error
}

// FindPending 按创建时间取待投递事件
func (r *eventRepository) FindPending(ctx context.Context, limit, maxRetries int) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", model.EventStatusPending, maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// FindByBookingID 查找预订相关事件
func (r *eventRepository) FindByBookingID(ctx context.Context, bookingID string) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC").Find(&events).Error
	return events, err
}

// MarkSent 标记已投递
func (r *eventRepository) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.EventModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     model.EventStatusSent,
		"sent_at":    now,
		"last_error": "",
		"updated_at": now,
	}).Error
}

// MarkFailed 记录失败；重试次数用尽后置为 failed
func (r *eventRepository) MarkFailed(ctx context.Context, id string, cause error, maxRetries int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	status := gorm.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END", maxRetries, model.EventStatusFailed)
	return r.db.WithContext(ctx).Model(&model.EventModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"status":      status,
		"last_error":  msg,
		"updated_at":  time.Now().UTC(),
	}).Error
}

// CountByStatus 统计某状态的事件数
func (r *eventRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.EventModel{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
