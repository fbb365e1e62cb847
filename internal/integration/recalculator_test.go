package integration_test

import (
	"context"
	"sync"
	"testing"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func complete(tx *gorm.DB, task *model.TaskModel) ([]string, error) {
	task.Status = model.StatusCompleted
	return []string{"status", "progress_percentage"}, nil
}

// TestRecalculator_CompletingTaskRollsUp 两个等权里程碑，完成其中一个里程碑一半任务后预订进度为 25
func TestRecalculator_CompletingTaskRollsUp(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedMilestone(t, db, "m2", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusPending)
	seedTask(t, db, "t2", "m1", model.StatusPending)
	seedTask(t, db, "t3", "m2", model.StatusPending)

	rec := &recorder{}
	r := newRecalculator(db, rec)

	out, err := r.OnTaskMutated(context.Background(), "t1", complete)
	require.NoError(t, err)

	assert.Equal(t, 100, out.Task.ProgressPercentage)
	assert.Equal(t, int64(2), out.Task.Version)
	require.NotNil(t, out.Milestone())
	assert.Equal(t, 50, out.Milestone().ProgressPercentage)
	assert.Equal(t, 25, out.Booking.ProjectProgress)

	assert.Equal(t, 50, loadMilestone(t, db, "m1").ProgressPercentage)
	assert.Equal(t, 0, loadMilestone(t, db, "m2").ProgressPercentage)
	b := loadBooking(t, db, "b1")
	assert.Equal(t, 25, b.ProjectProgress)
	assert.Equal(t, int64(2), b.Version)
}

// TestRecalculator_EventOrder 事件按 任务、里程碑、预订 的顺序发布
func TestRecalculator_EventOrder(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusPending)

	rec := &recorder{}
	r := newRecalculator(db, rec)

	out, err := r.OnTaskMutated(context.Background(), "t1", complete)
	require.NoError(t, err)

	assert.Equal(t, []string{model.EntityTask, model.EntityMilestone, model.EntityBooking}, rec.kinds())
	assert.Len(t, out.Events, 3)
	for _, evt := range rec.events {
		assert.Equal(t, "b1", evt.BookingID)
	}
	assert.Equal(t, []string{"status", "progress_percentage"}, rec.events[0].ChangedFields)
	assert.Equal(t, []string{"project_progress"}, rec.events[2].ChangedFields)

	// outbox 与事件一一对应
	var rows []model.EventModel
	require.NoError(t, db.Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, model.EventStatusPending, row.Status)
		assert.NotEmpty(t, row.Payload)
	}
}

// TestRecalculator_MonotonicProgress 逐个完成任务，预订进度单调递增直到 100
func TestRecalculator_MonotonicProgress(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 2)
	seedMilestone(t, db, "m2", "b1", 1)
	ids := []string{"t1", "t2", "t3"}
	seedTask(t, db, "t1", "m1", model.StatusPending)
	seedTask(t, db, "t2", "m1", model.StatusInProgress)
	seedTask(t, db, "t3", "m2", model.StatusPending)

	r := newRecalculator(db, nil)

	last := 0
	for _, id := range ids {
		out, err := r.OnTaskMutated(context.Background(), id, complete)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.Booking.ProjectProgress, last)
		last = out.Booking.ProjectProgress
	}
	assert.Equal(t, 100, last)
	assert.Equal(t, 100, loadBooking(t, db, "b1").ProjectProgress)
}

// TestRecalculator_NoChangesStillRecomputes 空变更不写任务但会修正缓存进度
func TestRecalculator_NoChangesStillRecomputes(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusCompleted)

	r := newRecalculator(db, nil)
	out, err := r.OnTaskMutated(context.Background(), "t1", func(*gorm.DB, *model.TaskModel) ([]string, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Task.Version)
	assert.Equal(t, 100, out.Booking.ProjectProgress)
}

// TestRecalculator_OrphanTask 孤儿任务：任务写入保留，上级不更新，不发布事件
func TestRecalculator_OrphanTask(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedTask(t, db, "t1", "missing", model.StatusPending)

	rec := &recorder{}
	r := newRecalculator(db, rec)

	out, err := r.OnTaskMutated(context.Background(), "t1", complete)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrIntegrity)
	require.NotNil(t, out)
	assert.Equal(t, model.StatusCompleted, out.Task.Status)
	assert.Nil(t, out.Booking)
	assert.Empty(t, rec.kinds())

	var task model.TaskModel
	require.NoError(t, db.First(&task, "id = ?", "t1").Error)
	assert.Equal(t, model.StatusCompleted, task.Status)

	b := loadBooking(t, db, "b1")
	assert.Equal(t, 0, b.ProjectProgress)
	assert.Equal(t, int64(1), b.Version)

	var count int64
	require.NoError(t, db.Model(&model.EventModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

// TestRecalculator_OrphanMilestone 里程碑所属预订不存在
func TestRecalculator_OrphanMilestone(t *testing.T) {
	db := setupTestDB(t)
	seedMilestone(t, db, "m1", "gone", 1)
	seedTask(t, db, "t1", "m1", model.StatusPending)

	r := newRecalculator(db, nil)
	_, err := r.OnTaskMutated(context.Background(), "t1", complete)
	assert.True(t, apperror.IsIntegrity(err))
	assert.Equal(t, 0, loadMilestone(t, db, "m1").ProgressPercentage)
}

// TestRecalculator_TaskNotFound 任务不存在
func TestRecalculator_TaskNotFound(t *testing.T) {
	db := setupTestDB(t)
	r := newRecalculator(db, nil)

	out, err := r.OnTaskMutated(context.Background(), "nope", complete)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// TestRecalculator_ConflictRetried 版本冲突后用新数据重试一次成功
func TestRecalculator_ConflictRetried(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusPending)

	r := newRecalculator(db, nil)
	calls := 0
	r.SetBeforeProgressWrite(func(tx *gorm.DB, entity string) {
		if entity != model.EntityMilestone {
			return
		}
		calls++
		if calls == 1 {
			require.NoError(t, tx.Exec("UPDATE milestones SET version = version + 1 WHERE id = ?", "m1").Error)
		}
	})

	out, err := r.OnTaskMutated(context.Background(), "t1", complete)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 100, out.Booking.ProjectProgress)
	assert.Equal(t, int64(2), loadMilestone(t, db, "m1").Version)
}

// TestRecalculator_ConcurrentSiblingTasks 同一里程碑下两个任务同时完成，结果以最新读取为准
func TestRecalculator_ConcurrentSiblingTasks(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusPending)
	seedTask(t, db, "t2", "m1", model.StatusPending)

	r := newRecalculator(db, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for _, id := range []string{"t1", "t2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := r.OnTaskMutated(ctx, id, complete)
			errs <- err
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.RecomputeBooking(ctx, "b1")
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ms := loadMilestone(t, db, "m1")
	b := loadBooking(t, db, "b1")
	assert.Equal(t, 100, ms.ProgressPercentage)
	assert.Equal(t, 100, b.ProjectProgress)
	// 三次重算各写一次
	assert.Equal(t, int64(4), ms.Version)
	assert.Equal(t, int64(4), b.Version)
}

// TestRecalculator_ConflictSurfaced 重试用尽后返回 ConflictError 并回滚
func TestRecalculator_ConflictSurfaced(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusPending)

	rec := &recorder{}
	r := newRecalculator(db, rec)
	r.SetBeforeProgressWrite(func(tx *gorm.DB, entity string) {
		if entity == model.EntityBooking {
			tx.Exec("UPDATE bookings SET version = version + 1 WHERE id = ?", "b1")
		}
	})

	_, err := r.OnTaskMutated(context.Background(), "t1", complete)
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	assert.Empty(t, rec.kinds())

	var task model.TaskModel
	require.NoError(t, db.First(&task, "id = ?", "t1").Error)
	assert.Equal(t, model.StatusPending, task.Status)
	assert.Equal(t, int64(1), task.Version)
}

// TestRecalculator_TaskAverageMode 平均进度模式
func TestRecalculator_TaskAverageMode(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusInProgress)
	seedTask(t, db, "t2", "m1", model.StatusPending)

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	r := integration.NewRecalculator(db, progress.ModeTaskAverage, 1, nil, l)
	assert.Equal(t, progress.ModeTaskAverage, r.Mode())

	out, err := r.OnTaskMutated(context.Background(), "t1", func(_ *gorm.DB, task *model.TaskModel) ([]string, error) {
		task.ProgressPercentage = 50
		return []string{"progress_percentage"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 25, out.Milestone().ProgressPercentage)
	assert.Equal(t, 25, out.Booking.ProjectProgress)
}

// TestRecalculator_DeleteTask 删除任务后重算
func TestRecalculator_DeleteTask(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusCompleted)
	seedTask(t, db, "t2", "m1", model.StatusPending)

	rec := &recorder{}
	r := newRecalculator(db, rec)
	out, err := r.OnTaskDeleted(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, 100, out.Booking.ProjectProgress)
	assert.Equal(t, []string{"deleted"}, rec.events[0].ChangedFields)

	var count int64
	require.NoError(t, db.Model(&model.TaskModel{}).Where("id = ?", "t2").Count(&count).Error)
	assert.Zero(t, count)
}

// TestRecalculator_DeleteMilestoneCascades 删除里程碑同时删除任务并重算预订
func TestRecalculator_DeleteMilestoneCascades(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedMilestone(t, db, "m2", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusCompleted)
	seedTask(t, db, "t2", "m2", model.StatusPending)

	r := newRecalculator(db, nil)
	_, err := r.RecomputeBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 50, loadBooking(t, db, "b1").ProjectProgress)

	out, err := r.OnMilestoneDeleted(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, 100, out.Booking.ProjectProgress)

	var count int64
	require.NoError(t, db.Model(&model.TaskModel{}).Where("milestone_id = ?", "m2").Count(&count).Error)
	assert.Zero(t, count)
}

// TestRecalculator_MilestoneWeightChange 修改权重只重算预订
func TestRecalculator_MilestoneWeightChange(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)
	seedMilestone(t, db, "m2", "b1", 1)
	seedTask(t, db, "t1", "m1", model.StatusCompleted)
	seedTask(t, db, "t2", "m2", model.StatusPending)

	rec := &recorder{}
	r := newRecalculator(db, rec)
	out, err := r.OnMilestoneMutated(context.Background(), "m1", func(_ *gorm.DB, ms *model.MilestoneModel) ([]string, error) {
		ms.Weight = 3
		return []string{"weight"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 75, out.Booking.ProjectProgress)
	assert.Equal(t, []string{model.EntityMilestone, model.EntityBooking}, rec.kinds())
	assert.Equal(t, []string{"weight", "progress_percentage"}, rec.events[0].ChangedFields)
	// 字段写入和进度写入各增加一次版本
	assert.Equal(t, int64(3), loadMilestone(t, db, "m1").Version)
}

// TestRecalculator_EmptyMilestone 没有任务的里程碑进度为 0
func TestRecalculator_EmptyMilestone(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	seedMilestone(t, db, "m1", "b1", 1)

	r := newRecalculator(db, nil)
	out, err := r.RecomputeBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Milestone().ProgressPercentage)
	assert.Equal(t, 0, out.Booking.ProjectProgress)
}
