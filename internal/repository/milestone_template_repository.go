package repository

import (
	"context"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// MilestoneTemplateRepository 里程碑模板仓储接口
type MilestoneTemplateRepository interface {
	Save(ctx context.Context, tpl *model.MilestoneTemplateModel) error
	FindByID(ctx context.Context, id string) (*model.MilestoneTemplateModel, error)
	FindByName(ctx context.Context, name string) (*model.MilestoneTemplateModel, error)
	FindAll(ctx context.Context) ([]*model.MilestoneTemplateModel, error)
	Delete(ctx context.Context, id string) error
}

type milestoneTemplateRepository struct {
	db *gorm.DB
}

// NewMilestoneTemplateRepository 创建模板仓储
func NewMilestoneTemplateRepository(db *gorm.DB) MilestoneTemplateRepository {
	return &milestoneTemplateRepository{db: db}
}

func (r *milestoneTemplateRepository) Save(ctx context.Context, tpl *model.MilestoneTemplateModel) error {
	return r.db.WithContext(ctx).Save(tpl).Error
}

func (r *milestoneTemplateRepository) FindByID(ctx context.Context, id string) (*model.MilestoneTemplateModel, error) {
	var tpl model.MilestoneTemplateModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tpl).Error; err != nil {
		return nil, notFound(err, model.EntityTemplate, id)
	}
	return &tpl, nil
}

func (r *milestoneTemplateRepository) FindByName(ctx context.Context, name string) (*model.MilestoneTemplateModel, error) {
	var tpl model.MilestoneTemplateModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&tpl).Error; err != nil {
		return nil, notFound(err, model.EntityTemplate, name)
	}
	return &tpl, nil
}

func (r *milestoneTemplateRepository) FindAll(ctx context.Context) ([]*model.MilestoneTemplateModel, error) {
	var tpls []*model.MilestoneTemplateModel
	err := r.db.WithContext(ctx).Order("name ASC").Find(&tpls).Error
	return tpls, err
}

func (r *milestoneTemplateRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.MilestoneTemplateModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, model.EntityTemplate, id)
	}
	return nil
}
