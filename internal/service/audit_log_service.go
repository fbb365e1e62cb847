package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type requestInfoKey struct{}

// RequestInfo 请求上下文信息，由请求日志中间件写入
type RequestInfo struct {
	RequestID string
	IP        string
	UserAgent string
}

// WithRequestInfo 把请求信息写入 context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom 读取请求信息
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, userID, action, resourceType, resourceID string, details interface{}) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]*model.AuditLogModel, error)
}

type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{auditRepo: auditRepo}
}

// RecordAction 记录操作审计日志
func (s *auditLogService) RecordAction(ctx context.Context, userID, action, resourceType, resourceID string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	info := RequestInfoFrom(ctx)

	return s.auditRepo.Insert(ctx, &model.AuditLogModel{
		ID:           uuid.NewString(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    info.RequestID,
		IP:           info.IP,
		UserAgent:    info.UserAgent,
		Details:      detailsJSON,
		CreatedAt:    time.Now().UTC(),
	})
}

// ListByResource 查询资源的审计日志
func (s *auditLogService) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.ListForResource(ctx, resourceType, resourceID, 0)
}

// recordAudit 审计写入失败不回滚已提交的变更，只记录日志
func recordAudit(ctx context.Context, audit AuditLogService, logger logrus.FieldLogger, userID, action, resourceType, resourceID string, details interface{}) {
	if audit == nil {
		return
	}
	if err := audit.RecordAction(ctx, userID, action, resourceType, resourceID, details); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action":        action,
			"resource_type": resourceType,
			"resource_id":   resourceID,
			"request_id":    RequestInfoFrom(ctx).RequestID,
		}).Warn("failed to record audit log")
	}
}
