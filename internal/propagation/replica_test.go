package propagation_test

import (
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReplica_DuplicateDelivery 测试重复投递不改变状态
func TestReplica_DuplicateDelivery(t *testing.T) {
	r := propagation.NewReplica()
	evt := event(t, "b-1", "t-1", 3, map[string]interface{}{"status": "completed", "progress_percentage": 100})

	assert.True(t, r.Apply(evt))
	value, version, ok := r.Get("task", "t-1")
	require.True(t, ok)

	assert.False(t, r.Apply(evt))
	again, againVersion, _ := r.Get("task", "t-1")
	assert.JSONEq(t, string(value), string(again))
	assert.Equal(t, version, againVersion)
	assert.Equal(t, 1, r.Len())
}

// TestReplica_OutOfOrder 测试旧版本事件被跳过
func TestReplica_OutOfOrder(t *testing.T) {
	r := propagation.NewReplica()
	newer := event(t, "b-1", "m-1", 5, map[string]int{"progress_percentage": 100})
	older := event(t, "b-1", "m-1", 4, map[string]int{"progress_percentage": 50})

	assert.True(t, r.Apply(newer))
	assert.False(t, r.Apply(older))

	value, version, _ := r.Get("task", "m-1")
	assert.Equal(t, int64(5), version)
	assert.JSONEq(t, `{"progress_percentage":100}`, string(value))
}

// TestReplica_LastWriteWins 测试同版本按更新时间后写者胜
func TestReplica_LastWriteWins(t *testing.T) {
	r := propagation.NewReplica()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first := event(t, "b-1", "t-9", 2, map[string]string{"title": "a"})
	first.UpdatedAt = base
	later := event(t, "b-1", "t-9", 2, map[string]string{"title": "b"})
	later.UpdatedAt = base.Add(time.Second)
	stale := event(t, "b-1", "t-9", 2, map[string]string{"title": "c"})
	stale.UpdatedAt = base.Add(-time.Second)

	assert.True(t, r.Apply(first))
	assert.True(t, r.Apply(later))
	assert.False(t, r.Apply(stale))

	value, _, _ := r.Get("task", "t-9")
	assert.JSONEq(t, `{"title":"b"}`, string(value))
}
