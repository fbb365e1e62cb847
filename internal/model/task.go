package model

import (
	"errors"
	"time"
)

// TaskModel 任务数据模型，隶属于一个里程碑
type TaskModel struct {
	ID                 string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	MilestoneID        string     `gorm:"type:varchar(64);not null;index" json:"milestone_id"`
	Title              string     `gorm:"type:varchar(255);not null" json:"title"`
	Status             string     `gorm:"type:varchar(32);not null;index" json:"status"`
	DueDate            *time.Time `gorm:"index" json:"due_date,omitempty"`
	ProgressPercentage int        `gorm:"type:int;not null;default:0" json:"progress_percentage"`
	EstimatedHours     float64    `gorm:"default:0" json:"estimated_hours"`
	ActualHours        float64    `gorm:"default:0" json:"actual_hours"`
	// Editable 没有数据库默认值，false 需要原样写入
	Editable           bool       `gorm:"not null" json:"editable"`
	Version            int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null;index" json:"updated_at"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Deadline 截止时间
func (tm *TaskModel) Deadline() *time.Time { return tm.DueDate }

// Done 是否已完成
func (tm *TaskModel) Done() bool { return tm.Status == StatusCompleted }

// Normalize 使状态与进度保持一致: completed 即 100
func (tm *TaskModel) Normalize() {
	if tm.Status == StatusCompleted {
		tm.ProgressPercentage = 100
	}
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return errors.New("task ID is required")
	}
	if tm.MilestoneID == "" {
		return errors.New("milestone ID is required")
	}
	if tm.Title == "" {
		return errors.New("task title is required")
	}
	if !ValidWorkStatus(tm.Status) {
		return errors.New("task status is invalid")
	}
	if tm.ProgressPercentage < 0 || tm.ProgressPercentage > 100 {
		return errors.New("task progress must be between 0 and 100")
	}
	if tm.Status == StatusCompleted && tm.ProgressPercentage != 100 {
		return errors.New("completed task must have progress 100")
	}
	if tm.EstimatedHours < 0 || tm.ActualHours < 0 {
		return errors.New("task hours must not be negative")
	}
	return nil
}
