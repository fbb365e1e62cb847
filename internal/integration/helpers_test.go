package integration_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建独立的内存数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// recorder 按顺序记录发布的事件
type recorder struct {
	mu     sync.Mutex
	events []propagation.ChangeEvent
}

func (r *recorder) Publish(_ context.Context, evt propagation.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EntityType
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newRecalculator(db *gorm.DB, pub propagation.Publisher) *integration.Recalculator {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return integration.NewRecalculator(db, progress.ModeCompletionRatio, 1, pub, l)
}

func seedBooking(t *testing.T, db *gorm.DB, id string) *model.BookingModel {
	t.Helper()
	b := &model.BookingModel{ID: id, ClientID: "client-1", ProviderID: "provider-1", Status: "approved", Version: 1}
	require.NoError(t, db.Create(b).Error)
	return b
}

func seedMilestone(t *testing.T, db *gorm.DB, id, bookingID string, weight float64) *model.MilestoneModel {
	t.Helper()
	m := &model.MilestoneModel{ID: id, BookingID: bookingID, Title: "Milestone " + id, Status: model.StatusPending, Weight: weight, Version: 1}
	require.NoError(t, db.Create(m).Error)
	return m
}

func seedTask(t *testing.T, db *gorm.DB, id, milestoneID, status string) *model.TaskModel {
	t.Helper()
	task := &model.TaskModel{ID: id, MilestoneID: milestoneID, Title: "Task " + id, Status: status, Editable: true, Version: 1}
	task.Normalize()
	require.NoError(t, db.Create(task).Error)
	return task
}

func loadMilestone(t *testing.T, db *gorm.DB, id string) model.MilestoneModel {
	t.Helper()
	var m model.MilestoneModel
	require.NoError(t, db.First(&m, "id = ?", id).Error)
	return m
}

func loadBooking(t *testing.T, db *gorm.DB, id string) model.BookingModel {
	t.Helper()
	var b model.BookingModel
	require.NoError(t, db.First(&b, "id = ?", id).Error)
	return b
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
