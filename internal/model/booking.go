package model

import (
	"errors"
	"time"
)

// BookingModel 预订数据模型
// Status/ApprovalStatus 由外部审批流程维护，ProjectProgress 只由重算流程写入
type BookingModel struct {
	ID              string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ClientID        string    `gorm:"type:varchar(64);not null;index" json:"client_id"`
	ProviderID      string    `gorm:"type:varchar(64);not null;index" json:"provider_id"`
	Title           string    `gorm:"type:varchar(255)" json:"title,omitempty"`
	Status          string    `gorm:"type:varchar(32);not null;index" json:"status"`
	ApprovalStatus  string    `gorm:"type:varchar(32)" json:"approval_status,omitempty"`
	ProjectProgress int       `gorm:"type:int;not null;default:0" json:"project_progress"`
	Currency        string    `gorm:"type:varchar(8)" json:"currency,omitempty"`
	Amount          float64   `gorm:"default:0" json:"amount"`
	Version         int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (BookingModel) TableName() string {
	return "bookings"
}

// Validate 验证预订模型
func (bm *BookingModel) Validate() error {
	if bm.ID == "" {
		return errors.New("booking ID is required")
	}
	if bm.ClientID == "" || bm.ProviderID == "" {
		return errors.New("booking client and provider are required")
	}
	if bm.Status == "" {
		return errors.New("booking status is required")
	}
	return nil
}
