package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	byStatus map[string]int64
	overdue  int64
	err      error
}

func (f *fakeCounter) CountByStatus(context.Context) (map[string]int64, error) {
	return f.byStatus, f.err
}

func (f *fakeCounter) CountOverdue(context.Context, time.Time) (int64, error) {
	return f.overdue, f.err
}

// TestRecordRecompute 测试重算计数
func TestRecordRecompute(t *testing.T) {
	before := testutil.ToFloat64(recomputesTotal.WithLabelValues("task", "ok"))
	RecordRecompute("task", "ok", 0.01)
	RecordRecompute("task", "ok", 0.02)
	assert.Equal(t, before+2, testutil.ToFloat64(recomputesTotal.WithLabelValues("task", "ok")))

	conflicts := testutil.ToFloat64(versionConflictsTotal.WithLabelValues("booking"))
	RecordConflict("booking")
	assert.Equal(t, conflicts+1, testutil.ToFloat64(versionConflictsTotal.WithLabelValues("booking")))
}

// TestCollector_CollectOnce 采集任务分布与逾期数
func TestCollector_CollectOnce(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	c := NewCollector(nil, &fakeCounter{
		byStatus: map[string]int64{"pending": 3, "completed": 2},
		overdue:  1,
	}, time.Minute, logger)
	c.CollectOnce(context.Background())

	assert.Equal(t, float64(3), testutil.ToFloat64(tasksByStatus.WithLabelValues("pending")))
	assert.Equal(t, float64(2), testutil.ToFloat64(tasksByStatus.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(overdueTasks))

	// 本轮缺席的状态归零
	c.tasks = &fakeCounter{byStatus: map[string]int64{"pending": 4}, overdue: 1}
	c.CollectOnce(context.Background())
	assert.Equal(t, float64(4), testutil.ToFloat64(tasksByStatus.WithLabelValues("pending")))
	assert.Equal(t, float64(0), testutil.ToFloat64(tasksByStatus.WithLabelValues("completed")))

	// 查询失败时保留上一次的值
	failing := NewCollector(nil, &fakeCounter{err: errors.New("db down")}, time.Minute, logger)
	failing.CollectOnce(context.Background())
	assert.Equal(t, float64(1), testutil.ToFloat64(overdueTasks))
}

// TestCollector_Run ctx 结束后 Run 返回
func TestCollector_Run(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	c := NewCollector(nil, &fakeCounter{byStatus: map[string]int64{}}, 10*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

// TestHandler 指标端点输出已注册的指标
func TestHandler(t *testing.T) {
	RecordIntegrityError()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "progress_integrity_errors_total")
}
