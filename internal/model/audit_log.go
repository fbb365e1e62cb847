package model

import (
	"errors"
	"time"
)

// AuditLogModel 审计日志，记录每一次任务/里程碑/模板变更
type AuditLogModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID       string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Action       string    `gorm:"type:varchar(64);not null;index" json:"action"` // create/update/delete/recompute/apply_template
	ResourceType string    `gorm:"type:varchar(32);not null" json:"resource_type"`
	ResourceID   string    `gorm:"type:varchar(64);not null;index" json:"resource_id"`
	RequestID    string    `gorm:"type:varchar(64);index" json:"request_id,omitempty"`
	IP           string    `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent    string    `gorm:"type:text" json:"user_agent,omitempty"`
	Details      []byte    `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (alm *AuditLogModel) Validate() error {
	switch {
	case alm.ID == "":
		return errors.New("audit log ID is required")
	case alm.UserID == "":
		return errors.New("user ID is required")
	case alm.Action == "":
		return errors.New("action is required")
	case alm.ResourceType == "" || alm.ResourceID == "":
		return errors.New("resource is required")
	}
	return nil
}
