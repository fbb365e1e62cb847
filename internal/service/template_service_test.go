package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTemplateService_CreateAndApply 测试模板创建、缓存与应用
func TestTemplateService_CreateAndApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.booking(t, "b1", "approved", "approved")

	svc := service.NewTemplateService(f.db, integration.NewTemplateManager(f.db, f.recalc), auth.NewRelationAuthorizer(), f.audit, nil)

	view, err := svc.Create(ctx, admin, &service.CreateTemplateRequest{
		Name: "logo-design",
		Milestones: []model.TemplateMilestone{
			{Title: "Concepts", Weight: 1, Tasks: []model.TemplateTask{{Title: "Sketches"}, {Title: "Moodboard"}}},
			{Title: "Final", Weight: 1, OffsetDays: 14},
		},
	})
	require.NoError(t, err)
	require.Len(t, view.Spec.Milestones, 2)

	got, err := svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "logo-design", got.Name)

	_, err = svc.Apply(ctx, client, "b1", &service.ApplyTemplateRequest{TemplateID: view.ID})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	res, err := svc.Apply(ctx, provider, "b1", &service.ApplyTemplateRequest{TemplateID: view.ID, StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, 0, *res.BookingProgress)

	p, err := f.progress.GetProgress(ctx, client, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalMilestones)
	assert.Equal(t, 2, p.TotalTasks)

	require.NoError(t, svc.Delete(ctx, admin, view.ID))
	_, err = svc.Get(ctx, view.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
