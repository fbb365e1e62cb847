package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/utils"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// TemplateManager 里程碑模板的存取与应用
type TemplateManager struct {
	repo   repository.MilestoneTemplateRepository
	recalc *Recalculator
}

// NewTemplateManager 创建模板管理器
func NewTemplateManager(db *gorm.DB, recalc *Recalculator) *TemplateManager {
	return &TemplateManager{
		repo:   repository.NewMilestoneTemplateRepository(db),
		recalc: recalc,
	}
}

// TemplateDocument YAML/JSON 导入格式
type TemplateDocument struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	model.TemplateSpec `yaml:",inline"`
}

// ParseTemplateYAML 解析 YAML 模板文件
func ParseTemplateYAML(data []byte) (*TemplateDocument, error) {
	var doc TemplateDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperror.Validation("importTemplate", model.EntityTemplate, "", "invalid yaml: %s", err.Error())
	}
	return &doc, nil
}

// Create 保存模板；同名模板存在时 replace 为 true 则覆盖
func (m *TemplateManager) Create(ctx context.Context, doc *TemplateDocument, operator string, replace bool) (*model.MilestoneTemplateModel, error) {
	const op = "createTemplate"

	if err := utils.ValidateTemplateName(doc.Name); err != nil {
		return nil, apperror.Validation(op, model.EntityTemplate, "", "name: %s", err.Error())
	}
	if err := doc.TemplateSpec.Validate(); err != nil {
		return nil, apperror.Validation(op, model.EntityTemplate, "", "%s", err.Error())
	}
	data, err := json.Marshal(doc.TemplateSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}

	now := time.Now().UTC()
	tpl := &model.MilestoneTemplateModel{
		ID:          NewID(),
		Name:        doc.Name,
		Description: doc.Description,
		Data:        data,
		CreatedBy:   operator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := m.repo.FindByName(ctx, doc.Name)
	switch {
	case err == nil && !replace:
		return nil, apperror.Validation(op, model.EntityTemplate, existing.ID, "template %q already exists", doc.Name)
	case err == nil:
		tpl.ID = existing.ID
		tpl.CreatedAt = existing.CreatedAt
	case !apperror.IsNotFound(err):
		return nil, err
	}

	if err := m.repo.Save(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}
	return tpl, nil
}

// Get 获取模板
func (m *TemplateManager) Get(ctx context.Context, id string) (*model.MilestoneTemplateModel, error) {
	return m.repo.FindByID(ctx, id)
}

// List 列出模板
func (m *TemplateManager) List(ctx context.Context) ([]*model.MilestoneTemplateModel, error) {
	return m.repo.FindAll(ctx)
}

// Delete 删除模板，已生成的里程碑不受影响
func (m *TemplateManager) Delete(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}

// Apply 按模板在预订下生成里程碑和任务，截止时间相对 start 计算
func (m *TemplateManager) Apply(ctx context.Context, bookingID, templateID string, start time.Time) (*Outcome, error) {
	tpl, err := m.repo.FindByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	spec, err := tpl.Spec()
	if err != nil {
		return nil, err
	}
	milestones, tasks := expandTemplate(spec, bookingID, start.UTC())
	return m.recalc.OnMilestoneCreated(ctx, milestones, tasks)
}

func expandTemplate(spec *model.TemplateSpec, bookingID string, start time.Time) ([]model.MilestoneModel, []model.TaskModel) {
	var milestones []model.MilestoneModel
	var tasks []model.TaskModel

	due := func(days int) *time.Time {
		if days <= 0 {
			return nil
		}
		d := start.AddDate(0, 0, days)
		return &d
	}

	for i, tm := range spec.Milestones {
		ms := model.MilestoneModel{
			ID:          NewID(),
			BookingID:   bookingID,
			Title:       tm.Title,
			Description: tm.Description,
			Status:      model.StatusPending,
			Weight:      tm.Weight,
			OrderIndex:  i,
			DueDate:     due(tm.OffsetDays),
			Version:     1,
			CreatedAt:   start,
			UpdatedAt:   start,
		}
		milestones = append(milestones, ms)

		for _, tt := range tm.Tasks {
			tasks = append(tasks, model.TaskModel{
				ID:             NewID(),
				MilestoneID:    ms.ID,
				Title:          tt.Title,
				Status:         model.StatusPending,
				DueDate:        due(tt.OffsetDays),
				EstimatedHours: tt.EstimatedHours,
				Editable:       true,
				Version:        1,
				CreatedAt:      start,
				UpdatedAt:      start,
			})
		}
	}
	return milestones, tasks
}
