// Package propagation 预订范围内的变更事件发布订阅
package propagation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChangeEvent 一个实体的变更通知
type ChangeEvent struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	BookingID     string          `json:"bookingId"`
	ChangedFields []string        `json:"changedFields"`
	NewValue      json.RawMessage `json:"newValue"`
	Version       int64           `json:"version"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	// Origin 发布实例，用于跨实例转发时跳过自身
	Origin string `json:"origin,omitempty"`
}

// NewChangeEvent 构造事件，value 序列化为 NewValue
func NewChangeEvent(entityType, entityID, bookingID string, changed []string, value interface{}, version int64, updatedAt time.Time) (ChangeEvent, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("failed to encode %s %s: %w", entityType, entityID, err)
	}
	return ChangeEvent{
		ID:            uuid.NewString(),
		EntityType:    entityType,
		EntityID:      entityID,
		BookingID:     bookingID,
		ChangedFields: changed,
		NewValue:      raw,
		Version:       version,
		UpdatedAt:     updatedAt,
	}, nil
}

// Key 实体标识
func (e ChangeEvent) Key() string {
	return e.EntityType + ":" + e.EntityID
}
