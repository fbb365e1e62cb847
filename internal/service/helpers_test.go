package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	admin    = auth.Caller{UserID: "admin-1", Roles: []string{auth.RoleAdmin}}
	client   = auth.Caller{UserID: "client-1", Roles: []string{auth.RoleClient}}
	provider = auth.Caller{UserID: "provider-1", Roles: []string{auth.RoleProvider}}
	stranger = auth.Caller{UserID: "someone", Roles: []string{auth.RoleClient}}
)

// fixture 服务测试依赖
type fixture struct {
	db       *gorm.DB
	broker   *propagation.Broker
	recalc   *integration.Recalculator
	taskMgr  *integration.TaskManager
	audit    service.AuditLogService
	progress service.ProgressService
	tasks    service.TaskService
	query    service.QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	broker := propagation.NewBroker(l)
	recalc := integration.NewRecalculator(db, progress.ModeCompletionRatio, 1, broker, l)
	taskMgr := integration.NewTaskManager(db, recalc, l)
	authz := auth.NewRelationAuthorizer()
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	return &fixture{
		db:       db,
		broker:   broker,
		recalc:   recalc,
		taskMgr:  taskMgr,
		audit:    audit,
		progress: service.NewProgressService(db, authz, recalc, audit, l),
		tasks:    service.NewTaskService(db, taskMgr, authz, audit, l),
		query:    service.NewQueryService(db, authz),
	}
}

func (f *fixture) booking(t *testing.T, id, status, approval string) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.BookingModel{
		ID: id, ClientID: client.UserID, ProviderID: provider.UserID,
		Status: status, ApprovalStatus: approval, Version: 1,
	}).Error)
}

func (f *fixture) milestone(t *testing.T, id, bookingID string, weight float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.MilestoneModel{
		ID: id, BookingID: bookingID, Title: id, Status: model.StatusPending, Weight: weight, Version: 1,
	}).Error)
}

func (f *fixture) task(t *testing.T, id, milestoneID, status string, due *time.Time) {
	t.Helper()
	task := &model.TaskModel{ID: id, MilestoneID: milestoneID, Title: id, Status: status, DueDate: due, Editable: true, Version: 1}
	task.Normalize()
	require.NoError(t, f.db.Create(task).Error)
}

func strPtr(s string) *string { return &s }
