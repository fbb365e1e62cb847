package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MilestoneTemplateModel 里程碑模板，Data 为 TemplateSpec 的 JSON
type MilestoneTemplateModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Data        []byte    `gorm:"type:jsonb;not null" json:"-"`
	CreatedBy   string    `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (MilestoneTemplateModel) TableName() string {
	return "milestone_templates"
}

// TemplateSpec 模板内容
type TemplateSpec struct {
	Milestones []TemplateMilestone `json:"milestones" yaml:"milestones"`
}

// TemplateMilestone 模板中的里程碑
type TemplateMilestone struct {
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Weight      float64        `json:"weight" yaml:"weight"`
	OffsetDays  int            `json:"offset_days,omitempty" yaml:"offset_days,omitempty"` // 相对应用时间的截止天数
	Tasks       []TemplateTask `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// TemplateTask 模板中的任务
type TemplateTask struct {
	Title          string  `json:"title" yaml:"title"`
	EstimatedHours float64 `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`
	OffsetDays     int     `json:"offset_days,omitempty" yaml:"offset_days,omitempty"`
}

// Validate 验证模板内容
func (s *TemplateSpec) Validate() error {
	if len(s.Milestones) == 0 {
		return errors.New("template must contain at least one milestone")
	}
	for i, m := range s.Milestones {
		if m.Title == "" {
			return fmt.Errorf("milestone %d: title is required", i)
		}
		if m.Weight <= 0 {
			return fmt.Errorf("milestone %q: weight must be positive", m.Title)
		}
		for j, t := range m.Tasks {
			if t.Title == "" {
				return fmt.Errorf("milestone %q task %d: title is required", m.Title, j)
			}
		}
	}
	return nil
}

// Spec 解析模板内容
func (mt *MilestoneTemplateModel) Spec() (*TemplateSpec, error) {
	var spec TemplateSpec
	if err := json.Unmarshal(mt.Data, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", mt.ID, err)
	}
	return &spec, nil
}

// Validate 验证模板模型
func (mt *MilestoneTemplateModel) Validate() error {
	if mt.ID == "" {
		return errors.New("template ID is required")
	}
	if mt.Name == "" {
		return errors.New("template name is required")
	}
	if len(mt.Data) == 0 {
		return errors.New("template data is required")
	}
	return nil
}
