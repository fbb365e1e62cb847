package repository

import (
	"context"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志
type AuditLogRepository interface {
	Insert(ctx context.Context, entry *model.AuditLogModel) error
	// ListForResource 最新的在前，limit <= 0 不限制
	ListForResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*model.AuditLogModel, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Insert(ctx context.Context, entry *model.AuditLogModel) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepository) ListForResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*model.AuditLogModel, error) {
	q := r.db.WithContext(ctx).
		Where(&model.AuditLogModel{ResourceType: resourceType, ResourceID: resourceID}).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*model.AuditLogModel
	return out, q.Find(&out).Error
}
