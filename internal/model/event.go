package model

import (
	"errors"
	"time"
)

// outbox 事件状态
const (
	EventStatusPending = "pending"
	EventStatusSent    = "sent"
	EventStatusFailed  = "failed"
)

// EventModel 变更事件 outbox，与重算在同一事务内写入，由投递器异步发送
type EventModel struct {
	ID            string     `gorm:"primaryKey;type:varchar(64)"`
	EntityType    string     `gorm:"type:varchar(32);not null;index"`
	EntityID      string     `gorm:"type:varchar(64);not null;index"`
	BookingID     string     `gorm:"type:varchar(64);not null;index"`
	ChangedFields string     `gorm:"type:text"` // 逗号分隔
	Payload       []byte     `gorm:"type:jsonb;not null"`
	EntityVersion int64      `gorm:"not null;default:0"`
	Status        string     `gorm:"type:varchar(32);not null;default:'pending';index"`
	RetryCount    int        `gorm:"type:int;default:0"`
	LastError     string     `gorm:"type:text"`
	SentAt        *time.Time
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.EntityType == "" || em.EntityID == "" {
		return errors.New("event entity is required")
	}
	if em.BookingID == "" {
		return errors.New("booking ID is required")
	}
	if len(em.Payload) == 0 {
		return errors.New("event payload is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}
