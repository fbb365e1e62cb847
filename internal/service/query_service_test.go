package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueryService_ListTasks 测试过滤与排序
func TestQueryService_ListTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	f.booking(t, "b1", "in_progress", "")
	f.booking(t, "b2", "in_progress", "")
	f.milestone(t, "m1", "b1", 1)
	f.milestone(t, "m2", "b2", 1)
	f.task(t, "t1", "m1", model.StatusPending, &past)
	f.task(t, "t2", "m1", model.StatusCompleted, &past)
	f.task(t, "t3", "m1", model.StatusPending, &future)
	f.task(t, "t4", "m2", model.StatusPending, &past)

	all, err := f.query.ListTasks(ctx, client, "b1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	overdue, err := f.query.ListTasks(ctx, client, "b1", &service.ListTasksFilter{OverdueOnly: true})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "t1", overdue[0].ID)
	assert.True(t, overdue[0].Overdue)

	sorted, err := f.query.ListTasks(ctx, client, "b1", &service.ListTasksFilter{Status: model.StatusPending, SortBy: "due_date", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, "t1", sorted[0].ID)

	_, err = f.query.ListTasks(ctx, client, "b1", &service.ListTasksFilter{SortBy: "id; DROP TABLE tasks"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.query.ListTasks(ctx, client, "b1", &service.ListTasksFilter{Status: "done"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// TestQueryService_History 状态历史与事件
func TestQueryService_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.booking(t, "b1", "in_progress", "")
	f.milestone(t, "m1", "b1", 1)
	f.task(t, "t1", "m1", model.StatusPending, nil)

	_, err := f.taskMgr.UpdateTask(ctx, "t1", integration.TaskUpdate{Status: strPtr(model.StatusOnHold)}, "provider-1")
	require.NoError(t, err)

	history, err := f.query.GetHistory(ctx, client, model.EntityTask, "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.StatusOnHold, history[0].ToState)

	_, err = f.query.GetHistory(ctx, stranger, model.EntityTask, "t1")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.query.GetHistory(ctx, client, model.EntityBooking, "b1")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	events, err := f.query.ListEvents(ctx, client, "b1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

// TestStatisticsService 测试统计
func TestStatisticsService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	f.booking(t, "b1", "in_progress", "")
	f.milestone(t, "m1", "b1", 1)
	f.task(t, "t1", "m1", model.StatusPending, &past)
	f.task(t, "t2", "m1", model.StatusCompleted, &past)
	f.task(t, "t3", "m1", model.StatusInProgress, nil)

	_, err := f.recalc.RecomputeBooking(ctx, "b1")
	require.NoError(t, err)

	svc := service.NewStatisticsService(f.db)
	stats, err := svc.GetTaskStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[model.StatusCompleted])
	assert.Equal(t, int64(1), stats.Overdue)

	outbox, err := svc.GetOutboxStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), outbox.Pending)
	assert.Zero(t, outbox.Sent)
}
