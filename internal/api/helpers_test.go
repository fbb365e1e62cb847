package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/AbuAli85/business-services-hub-sub014/internal/api"
	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/config"
	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeValidator token 即用户，角色固定
type fakeValidator map[string][]string

func (f fakeValidator) ValidateToken(token string) (*auth.KeycloakClaims, error) {
	roles, ok := f[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	claims := &auth.KeycloakClaims{}
	claims.Subject = token
	claims.RealmAccess.Roles = roles
	return claims, nil
}

var tokens = fakeValidator{
	"admin-1":    {auth.RoleAdmin},
	"client-1":   {auth.RoleClient},
	"provider-1": {auth.RoleProvider},
	"stranger":   {auth.RoleClient},
}

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	broker *propagation.Broker
}

// setupRouter 预订 b1 下一个里程碑 m1 和两个任务
func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	require.NoError(t, db.Create(&model.BookingModel{ID: "b1", ClientID: "client-1", ProviderID: "provider-1", Status: "in_progress", Version: 1}).Error)
	require.NoError(t, db.Create(&model.MilestoneModel{ID: "m1", BookingID: "b1", Title: "Design", Status: model.StatusPending, Weight: 1, Version: 1}).Error)
	require.NoError(t, db.Create(&model.TaskModel{ID: "t1", MilestoneID: "m1", Title: "Wireframes", Status: model.StatusPending, Editable: true, Version: 1}).Error)
	require.NoError(t, db.Create(&model.TaskModel{ID: "t2", MilestoneID: "m1", Title: "Mockups", Status: model.StatusPending, Editable: true, Version: 1}).Error)
	require.NoError(t, db.Create(&model.TaskModel{ID: "t-orphan", MilestoneID: "gone", Title: "Orphan", Status: model.StatusPending, Editable: true, Version: 1}).Error)

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	cfg := config.Default()
	cfg.RateLimit.RPS = 0

	broker := propagation.NewBroker(l)
	recalc := integration.NewRecalculator(db, progress.ModeCompletionRatio, 1, broker, l)
	authz := auth.NewRelationAuthorizer()
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	router := api.SetupRoutes(api.Dependencies{
		Config:        cfg,
		Logger:        l,
		Validator:     tokens,
		Progress:      service.NewProgressService(db, authz, recalc, audit, l),
		Tasks:         service.NewTaskService(db, integration.NewTaskManager(db, recalc, l), authz, audit, l),
		Templates:     service.NewTemplateService(db, integration.NewTemplateManager(db, recalc), authz, audit, l),
		Query:         service.NewQueryService(db, authz),
		Statistics:    service.NewStatisticsService(db),
		Subscriptions: service.NewSubscriptionService(db, broker, authz),
		Health:        api.NewHealthController(db),
		SLAAlerts:     api.NewSLAAlertManager(),
	})
	return &testEnv{db: db, router: router, broker: broker}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Code    int             `json:"code"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}
