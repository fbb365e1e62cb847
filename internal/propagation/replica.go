package propagation

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// Replica 订阅端持有的实体状态，重复或乱序的事件不会覆盖新状态
type Replica struct {
	mu      sync.RWMutex
	entries map[string]replicaEntry
}

type replicaEntry struct {
	version   int64
	updatedAt time.Time
	value     json.RawMessage
}

// NewReplica 创建 Replica
func NewReplica() *Replica {
	return &Replica{entries: make(map[string]replicaEntry)}
}

// Apply 应用事件，返回状态是否改变
// 版本更低的事件忽略；同版本时内容相同视为重复，不同则按 UpdatedAt 后写者胜
func (r *Replica) Apply(evt ChangeEvent) bool {
	key := evt.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	held, ok := r.entries[key]
	if ok {
		switch {
		case evt.Version < held.version:
			return false
		case evt.Version == held.version:
			if bytes.Equal(held.value, evt.NewValue) {
				return false
			}
			if !evt.UpdatedAt.After(held.updatedAt) {
				return false
			}
		}
	}

	r.entries[key] = replicaEntry{
		version:   evt.Version,
		updatedAt: evt.UpdatedAt,
		value:     append(json.RawMessage(nil), evt.NewValue...),
	}
	return true
}

// Get 返回实体当前值与版本
func (r *Replica) Get(entityType, entityID string) (json.RawMessage, int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entityType+":"+entityID]
	if !ok {
		return nil, 0, false
	}
	return e.value, e.version, true
}

// Len 持有的实体数
func (r *Replica) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
