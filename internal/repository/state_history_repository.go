package repository

import (
	"context"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// StateHistoryRepository 状态迁移记录。写入总是和状态变更在同一事务里
type StateHistoryRepository interface {
	Append(ctx context.Context, h *model.StateHistoryModel) error
	ListForEntity(ctx context.Context, entityType, entityID string) ([]*model.StateHistoryModel, error)
}

type stateHistoryRepository struct {
	db *gorm.DB
}

// NewStateHistoryRepository db 可以是事务句柄
func NewStateHistoryRepository(db *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: db}
}

func (r *stateHistoryRepository) Append(ctx context.Context, h *model.StateHistoryModel) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// ListForEntity 最早的迁移在前
func (r *stateHistoryRepository) ListForEntity(ctx context.Context, entityType, entityID string) ([]*model.StateHistoryModel, error) {
	var out []*model.StateHistoryModel
	err := r.db.WithContext(ctx).
		Where(&model.StateHistoryModel{EntityType: entityType, EntityID: entityID}).
		Order("created_at").
		Find(&out).Error
	return out, err
}
