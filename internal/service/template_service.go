package service

import (
	"context"
	"sync"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TemplateService 里程碑模板服务
type TemplateService interface {
	Create(ctx context.Context, caller auth.Caller, req *CreateTemplateRequest) (*TemplateView, error)
	Get(ctx context.Context, id string) (*TemplateView, error)
	List(ctx context.Context) ([]*TemplateView, error)
	Delete(ctx context.Context, caller auth.Caller, id string) error
	Apply(ctx context.Context, caller auth.Caller, bookingID string, req *ApplyTemplateRequest) (*MutationResult, error)
}

// CreateTemplateRequest 创建模板请求
type CreateTemplateRequest struct {
	Name        string                    `json:"name" binding:"required"`
	Description string                    `json:"description"`
	Milestones  []model.TemplateMilestone `json:"milestones" binding:"required"`
	Replace     bool                      `json:"replace"`
}

// ApplyTemplateRequest 应用模板请求，StartDate 为空时取当前时间
type ApplyTemplateRequest struct {
	TemplateID string     `json:"template_id" binding:"required"`
	StartDate  *time.Time `json:"start_date"`
}

// TemplateView 模板及其解析后的内容
type TemplateView struct {
	*model.MilestoneTemplateModel
	Spec *model.TemplateSpec `json:"spec"`
}

type templateCacheEntry struct {
	view      *TemplateView
	expiresAt time.Time
}

type templateService struct {
	access   *access
	mgr      *integration.TemplateManager
	audit    AuditLogService
	cache    *sync.Map
	cacheTTL time.Duration
	logger   logrus.FieldLogger
}

// NewTemplateService 创建模板服务
func NewTemplateService(db *gorm.DB, mgr *integration.TemplateManager, authorizer auth.Authorizer, audit AuditLogService, logger logrus.FieldLogger) TemplateService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &templateService{
		access:   newAccess(db, authorizer),
		mgr:      mgr,
		audit:    audit,
		cache:    &sync.Map{},
		cacheTTL: 5 * time.Minute,
		logger:   logger.WithField("component", "template_service"),
	}
}

func toView(tpl *model.MilestoneTemplateModel) (*TemplateView, error) {
	spec, err := tpl.Spec()
	if err != nil {
		return nil, err
	}
	return &TemplateView{MilestoneTemplateModel: tpl, Spec: spec}, nil
}

// Create 创建或覆盖模板
func (s *templateService) Create(ctx context.Context, caller auth.Caller, req *CreateTemplateRequest) (*TemplateView, error) {
	doc := &integration.TemplateDocument{
		Name:         req.Name,
		Description:  req.Description,
		TemplateSpec: model.TemplateSpec{Milestones: req.Milestones},
	}
	tpl, err := s.mgr.Create(ctx, doc, caller.UserID, req.Replace)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(tpl.ID)
	recordAudit(ctx, s.audit, s.logger, caller.UserID, "create", model.EntityTemplate, tpl.ID, map[string]interface{}{
		"name":    tpl.Name,
		"replace": req.Replace,
	})
	return toView(tpl)
}

// Get 获取模板，带缓存
func (s *templateService) Get(ctx context.Context, id string) (*TemplateView, error) {
	if v, ok := s.cache.Load(id); ok {
		entry := v.(*templateCacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.view, nil
		}
		s.cache.Delete(id)
	}

	tpl, err := s.mgr.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := toView(tpl)
	if err != nil {
		return nil, err
	}
	s.cache.Store(id, &templateCacheEntry{view: view, expiresAt: time.Now().Add(s.cacheTTL)})
	return view, nil
}

// List 列出全部模板
func (s *templateService) List(ctx context.Context) ([]*TemplateView, error) {
	tpls, err := s.mgr.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*TemplateView, 0, len(tpls))
	for _, tpl := range tpls {
		view, err := toView(tpl)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Delete 删除模板
func (s *templateService) Delete(ctx context.Context, caller auth.Caller, id string) error {
	if err := s.mgr.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(id)
	recordAudit(ctx, s.audit, s.logger, caller.UserID, "delete", model.EntityTemplate, id, nil)
	return nil
}

// Apply 把模板应用到预订
func (s *templateService) Apply(ctx context.Context, caller auth.Caller, bookingID string, req *ApplyTemplateRequest) (*MutationResult, error) {
	if _, err := s.access.booking(ctx, "applyTemplate", caller, bookingID, auth.RelationEditor); err != nil {
		return nil, err
	}
	start := time.Now()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	out, err := s.mgr.Apply(ctx, bookingID, req.TemplateID, start)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, caller.UserID, "apply_template", model.EntityBooking, bookingID, map[string]interface{}{
		"template_id": req.TemplateID,
		"milestones":  len(out.Milestones),
	})
	return resultOf(out), nil
}
