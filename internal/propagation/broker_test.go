package propagation_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(t *testing.T, bookingID, entityID string, version int64, value interface{}) propagation.ChangeEvent {
	t.Helper()
	evt, err := propagation.NewChangeEvent("task", entityID, bookingID, []string{"status"}, value, version, time.Now().UTC())
	require.NoError(t, err)
	return evt
}

// TestBroker_FanOutByBooking 测试只分发给同一预订的订阅者
func TestBroker_FanOutByBooking(t *testing.T) {
	b := propagation.NewBroker(logrus.New())

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(name string) propagation.Callback {
		return func(evt propagation.ChangeEvent) {
			mu.Lock()
			defer mu.Unlock()
			got[name] = append(got[name], evt.EntityID)
		}
	}

	b.Subscribe("b-1", record("a"))
	b.Subscribe("b-1", record("b"))
	b.Subscribe("b-2", record("c"))

	require.NoError(t, b.Publish(context.Background(), event(t, "b-1", "t-1", 2, map[string]string{"status": "completed"})))

	assert.Equal(t, []string{"t-1"}, got["a"])
	assert.Equal(t, []string{"t-1"}, got["b"])
	assert.Empty(t, got["c"])
}

// TestSubscription_UnsubscribeIdempotent 测试重复取消订阅且不泄漏
func TestSubscription_UnsubscribeIdempotent(t *testing.T) {
	b := propagation.NewBroker(nil)

	calls := 0
	sub := b.Subscribe("b-1", func(propagation.ChangeEvent) { calls++ })
	assert.Equal(t, 1, b.SubscriberCount("b-1"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount("b-1"))
	assert.Equal(t, 0, b.SubscriberCount(""))

	require.NoError(t, b.Publish(context.Background(), event(t, "b-1", "t-1", 1, nil)))
	assert.Equal(t, 0, calls)
}

// TestBroker_CallbackPanicIsolated 测试回调 panic 不影响其他订阅者
func TestBroker_CallbackPanicIsolated(t *testing.T) {
	b := propagation.NewBroker(nil)
	delivered := false
	b.Subscribe("b-1", func(propagation.ChangeEvent) { panic("boom") })
	b.Subscribe("b-1", func(propagation.ChangeEvent) { delivered = true })

	assert.NotPanics(t, func() {
		_ = b.Publish(context.Background(), event(t, "b-1", "t-1", 1, nil))
	})
	assert.True(t, delivered)
}

// loopback 进程内模拟的 Backplane，两个 Broker 共享
type loopback struct {
	mu       sync.Mutex
	handlers []func(propagation.ChangeEvent)
	ready    chan struct{}
}

func newLoopback() *loopback {
	return &loopback{ready: make(chan struct{}, 8)}
}

func (l *loopback) Publish(_ context.Context, evt propagation.ChangeEvent) error {
	data, _ := json.Marshal(evt)
	var copyEvt propagation.ChangeEvent
	_ = json.Unmarshal(data, &copyEvt)

	l.mu.Lock()
	hs := append([]func(propagation.ChangeEvent){}, l.handlers...)
	l.mu.Unlock()
	for _, h := range hs {
		h(copyEvt)
	}
	return nil
}

func (l *loopback) Listen(ctx context.Context, handler func(propagation.ChangeEvent)) error {
	l.mu.Lock()
	l.handlers = append(l.handlers, handler)
	l.mu.Unlock()
	l.ready <- struct{}{}
	<-ctx.Done()
	return nil
}

func (l *loopback) Close() error { return nil }

// TestBroker_BackplaneSkipsOwnOrigin 测试跨实例转发且不重复投递给自身
func TestBroker_BackplaneSkipsOwnOrigin(t *testing.T) {
	bp := newLoopback()
	local := propagation.NewBroker(nil, propagation.WithBackplane(bp))
	remote := propagation.NewBroker(nil, propagation.WithBackplane(bp))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go local.Run(ctx)
	go remote.Run(ctx)
	<-bp.ready
	<-bp.ready

	var mu sync.Mutex
	localCount, remoteCount := 0, 0
	local.Subscribe("b-1", func(propagation.ChangeEvent) { mu.Lock(); localCount++; mu.Unlock() })
	remote.Subscribe("b-1", func(propagation.ChangeEvent) { mu.Lock(); remoteCount++; mu.Unlock() })

	require.NoError(t, local.Publish(ctx, event(t, "b-1", "t-1", 1, nil)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, localCount)
	assert.Equal(t, 1, remoteCount)
}
