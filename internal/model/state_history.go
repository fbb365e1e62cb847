package model

import "time"

// StateHistoryModel 任务或里程碑的一次状态迁移，只追加不修改
type StateHistoryModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	EntityType string    `gorm:"type:varchar(32);not null;index:idx_history_entity" json:"entity_type"` // task / milestone
	EntityID   string    `gorm:"type:varchar(64);not null;index:idx_history_entity" json:"entity_id"`
	BookingID  string    `gorm:"type:varchar(64);index" json:"booking_id,omitempty"`
	FromState  string    `gorm:"type:varchar(32)" json:"from_state"` // 新建时为空
	ToState    string    `gorm:"type:varchar(32);not null" json:"to_state"`
	Reason     string    `gorm:"type:text" json:"reason,omitempty"`
	Operator   string    `gorm:"type:varchar(64);not null" json:"operator"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

func (StateHistoryModel) TableName() string {
	return "state_history"
}
