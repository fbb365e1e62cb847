package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const websiteTemplate = `
name: website-launch
description: Standard website delivery
milestones:
  - title: Discovery
    weight: 1
    offset_days: 7
    tasks:
      - title: Kickoff call
        estimated_hours: 1.5
      - title: Requirements doc
        offset_days: 5
  - title: Build
    weight: 3
    tasks:
      - title: Implement pages
`

// TestParseTemplateYAML 测试解析 YAML 模板
func TestParseTemplateYAML(t *testing.T) {
	doc, err := integration.ParseTemplateYAML([]byte(websiteTemplate))
	require.NoError(t, err)
	assert.Equal(t, "website-launch", doc.Name)
	require.Len(t, doc.Milestones, 2)
	assert.Equal(t, 3.0, doc.Milestones[1].Weight)
	assert.Equal(t, 1.5, doc.Milestones[0].Tasks[0].EstimatedHours)

	_, err = integration.ParseTemplateYAML([]byte("milestones: [::"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// TestTemplateManager_CreateAndApply 保存模板并应用到预订
func TestTemplateManager_CreateAndApply(t *testing.T) {
	db := setupTestDB(t)
	seedBooking(t, db, "b1")
	mgr := integration.NewTemplateManager(db, newRecalculator(db, nil))
	ctx := context.Background()

	doc, err := integration.ParseTemplateYAML([]byte(websiteTemplate))
	require.NoError(t, err)
	tpl, err := mgr.Create(ctx, doc, "admin", false)
	require.NoError(t, err)

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	out, err := mgr.Apply(ctx, "b1", tpl.ID, start)
	require.NoError(t, err)
	require.Len(t, out.Milestones, 2)
	assert.Equal(t, 0, out.Booking.ProjectProgress)

	var milestones []model.MilestoneModel
	require.NoError(t, db.Where("booking_id = ?", "b1").Order("order_index").Find(&milestones).Error)
	require.Len(t, milestones, 2)
	require.NotNil(t, milestones[0].DueDate)
	assert.True(t, start.AddDate(0, 0, 7).Equal(*milestones[0].DueDate))
	assert.Nil(t, milestones[1].DueDate)

	var tasks []model.TaskModel
	require.NoError(t, db.Where("milestone_id = ?", milestones[0].ID).Find(&tasks).Error)
	assert.Len(t, tasks, 2)
}

// TestTemplateManager_DuplicateName 同名模板需要显式覆盖
func TestTemplateManager_DuplicateName(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTemplateManager(db, newRecalculator(db, nil))
	ctx := context.Background()

	doc, err := integration.ParseTemplateYAML([]byte(websiteTemplate))
	require.NoError(t, err)
	first, err := mgr.Create(ctx, doc, "admin", false)
	require.NoError(t, err)

	_, err = mgr.Create(ctx, doc, "admin", false)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	doc.Description = "v2"
	second, err := mgr.Create(ctx, doc, "admin", true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v2", list[0].Description)

	require.NoError(t, mgr.Delete(ctx, first.ID))
	_, err = mgr.Get(ctx, first.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// TestTemplateManager_InvalidSpec 非法模板内容
func TestTemplateManager_InvalidSpec(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTemplateManager(db, newRecalculator(db, nil))

	doc := &integration.TemplateDocument{
		Name:         "bad",
		TemplateSpec: model.TemplateSpec{Milestones: []model.TemplateMilestone{{Title: "x", Weight: 0}}},
	}
	_, err := mgr.Create(context.Background(), doc, "admin", false)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
