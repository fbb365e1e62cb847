package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSubscriptionService_Subscribe 订阅方按 任务、里程碑、预订 顺序收到变更
func TestSubscriptionService_Subscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.booking(t, "b1", "in_progress", "")
	f.milestone(t, "m1", "b1", 1)
	f.task(t, "t1", "m1", model.StatusPending, nil)

	svc := service.NewSubscriptionService(f.db, f.broker, auth.NewRelationAuthorizer())

	_, err := svc.Subscribe(ctx, stranger, "b1", func(propagation.ChangeEvent) {})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = svc.Subscribe(ctx, client, "missing", func(propagation.ChangeEvent) {})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var mu sync.Mutex
	var got []string
	sub, err := svc.Subscribe(ctx, client, "b1", func(evt propagation.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.EntityType)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.broker.SubscriberCount("b1"))

	_, err = f.tasks.UpdateTask(ctx, provider, "t1", &service.UpdateTaskRequest{Status: strPtr(model.StatusInProgress)})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{model.EntityTask, model.EntityMilestone, model.EntityBooking}, got)
	mu.Unlock()

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Zero(t, f.broker.SubscriberCount("b1"))
}
