package websocket_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	ws "github.com/AbuAli85/business-services-hub-sub014/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type wsEnv struct {
	server *httptest.Server
	broker *propagation.Broker
	hub    *ws.Hub
}

// setupServer 启动带预订 b1 的测试服务，X-User 头模拟已认证用户
func setupServer(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, db.Create(&model.BookingModel{ID: "b1", ClientID: "client-1", ProviderID: "provider-1", Status: "in_progress", Version: 1}).Error)

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	broker := propagation.NewBroker(l)
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	subs := service.NewSubscriptionService(db, broker, auth.NewRelationAuthorizer())
	handler := ws.NewHandler(hub, subs, nil, l)

	r := gin.New()
	r.GET("/ws/bookings/:id", func(c *gin.Context) {
		auth.SetCaller(c, auth.Caller{UserID: c.GetHeader("X-User"), Roles: []string{auth.RoleClient}})
		c.Next()
	}, handler.ServeBooking)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		sqlDB.Close()
	})
	return &wsEnv{server: srv, broker: broker, hub: hub}
}

func (e *wsEnv) dial(t *testing.T, user, bookingID string) (*gorillaWS.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/bookings/" + bookingID
	return gorillaWS.DefaultDialer.Dial(url, http.Header{"X-User": []string{user}})
}

func event(t *testing.T, version int64, progress int) propagation.ChangeEvent {
	t.Helper()
	evt, err := propagation.NewChangeEvent(model.EntityBooking, "b1", "b1", []string{"project_progress"},
		map[string]int{"project_progress": progress}, version, time.Now().UTC())
	require.NoError(t, err)
	return evt
}

func readEvent(t *testing.T, conn *gorillaWS.Conn) propagation.ChangeEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt propagation.ChangeEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

// TestHandler_StreamsChanges 订阅方收到变更，过期版本被跳过
func TestHandler_StreamsChanges(t *testing.T) {
	env := setupServer(t)

	conn, _, err := env.dial(t, "client-1", "b1")
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.hub.BookingClientCount("b1") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, env.broker.SubscriberCount("b1"))

	ctx := context.Background()
	require.NoError(t, env.broker.Publish(ctx, event(t, 2, 40)))
	require.NoError(t, env.broker.Publish(ctx, event(t, 1, 10)))
	require.NoError(t, env.broker.Publish(ctx, event(t, 3, 60)))

	first := readEvent(t, conn)
	assert.Equal(t, int64(2), first.Version)
	second := readEvent(t, conn)
	assert.Equal(t, int64(3), second.Version)
	assert.JSONEq(t, `{"project_progress":60}`, string(second.NewValue))
}

// TestHandler_Disconnect 断开后取消订阅
func TestHandler_Disconnect(t *testing.T) {
	env := setupServer(t)

	conn, _, err := env.dial(t, "client-1", "b1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.hub.GetClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return env.hub.GetClientCount() == 0 && env.broker.SubscriberCount("b1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestHandler_Rejects 无关用户和不存在的预订在升级前被拒绝
func TestHandler_Rejects(t *testing.T) {
	env := setupServer(t)

	_, resp, err := env.dial(t, "stranger", "b1")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = env.dial(t, "client-1", "missing")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Zero(t, env.broker.SubscriberCount("b1"))
}
