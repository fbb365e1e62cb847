package model

import (
	"errors"
	"time"
)

// MilestoneModel 里程碑数据模型
// ProgressPercentage 是缓存值，只由重算流程写入
type MilestoneModel struct {
	ID                 string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	BookingID          string     `gorm:"type:varchar(64);not null;index" json:"booking_id"`
	Title              string     `gorm:"type:varchar(255);not null" json:"title"`
	Description        string     `gorm:"type:text" json:"description,omitempty"`
	Status             string     `gorm:"type:varchar(32);not null;index" json:"status"`
	Weight             float64    `gorm:"not null;default:1" json:"weight"`
	ProgressPercentage int        `gorm:"type:int;not null;default:0" json:"progress_percentage"`
	OrderIndex         int        `gorm:"type:int;not null;default:0" json:"order_index"`
	DueDate            *time.Time `gorm:"index" json:"due_date,omitempty"`
	Version            int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (MilestoneModel) TableName() string {
	return "milestones"
}

// Deadline 截止时间
func (mm *MilestoneModel) Deadline() *time.Time { return mm.DueDate }

// Done 是否已完成
func (mm *MilestoneModel) Done() bool { return mm.Status == StatusCompleted }

// Validate 验证里程碑模型
func (mm *MilestoneModel) Validate() error {
	if mm.ID == "" {
		return errors.New("milestone ID is required")
	}
	if mm.BookingID == "" {
		return errors.New("booking ID is required")
	}
	if mm.Title == "" {
		return errors.New("milestone title is required")
	}
	if !ValidWorkStatus(mm.Status) {
		return errors.New("milestone status is invalid")
	}
	if mm.Weight <= 0 {
		return errors.New("milestone weight must be positive")
	}
	return nil
}
