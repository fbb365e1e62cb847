package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/AbuAli85/business-services-hub-sub014/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCommandsRegistered 测试子命令注册
func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{{"server"}, {"migrate"}, {"recompute"}, {"repair"}, {"report"}, {"template", "import"}} {
		c, _, err := GetRootCmd().Find(path)
		require.NoError(t, err, path)
		assert.NotNil(t, c)
	}
}

func milestoneView(weight float64, cached int, statuses ...string) service.MilestoneView {
	mv := service.MilestoneView{MilestoneModel: model.MilestoneModel{Weight: weight, ProgressPercentage: cached}}
	for _, s := range statuses {
		mv.Tasks = append(mv.Tasks, service.TaskView{TaskModel: model.TaskModel{Status: s}})
	}
	return mv
}

// TestProgressDrifted 测试缓存漂移判断
func TestProgressDrifted(t *testing.T) {
	view := &service.BookingProgress{Milestones: []service.MilestoneView{
		milestoneView(1, 50, model.StatusCompleted, model.StatusPending),
		milestoneView(3, 100, model.StatusCompleted),
	}}
	assert.False(t, progressDrifted(88, view, progress.ModeCompletionRatio))
	assert.True(t, progressDrifted(50, view, progress.ModeCompletionRatio))

	view.Milestones[0].ProgressPercentage = 0
	assert.True(t, progressDrifted(88, view, progress.ModeCompletionRatio))
}

// TestRenderReport 测试报告输出
func TestRenderReport(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	view := &service.BookingProgress{
		BookingID:       "b1",
		OverallProgress: 50,
		TotalTasks:      2,
		CompletedTasks:  1,
		TotalMilestones: 1,
		OverdueTasks:    1,
		Milestones: []service.MilestoneView{{
			MilestoneModel: model.MilestoneModel{Title: "Design", Weight: 1, ProgressPercentage: 50},
			Tasks: []service.TaskView{
				{TaskModel: model.TaskModel{Title: "Wireframes", Status: model.StatusCompleted}},
				{TaskModel: model.TaskModel{Title: "Mockups", Status: model.StatusPending, DueDate: &due}, Overdue: true},
			},
		}},
	}
	st := &service.BookingStatus{DisplayStatus: status.Display{Canonical: status.InProduction}}

	var buf bytes.Buffer
	renderReport(&buf, view, st, 20)
	out := buf.String()
	assert.Contains(t, out, "Booking b1")
	assert.Contains(t, out, "in_production")
	assert.Contains(t, out, "Design")
	assert.Contains(t, out, "Mockups")
	assert.Contains(t, out, "1 overdue task(s)")
}

// TestTemplateImport 测试从 YAML 导入模板
func TestTemplateImport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hub.db")
	t.Setenv("APP_DATABASE_DRIVER", "sqlite")
	t.Setenv("APP_DATABASE_PATH", dbPath)
	t.Setenv("APP_LOG_LEVEL", "error")

	tplPath := filepath.Join(dir, "website.yaml")
	require.NoError(t, os.WriteFile(tplPath, []byte(`name: website-launch
description: Standard website delivery
milestones:
  - title: Design
    weight: 2
    offset_days: 7
    tasks:
      - title: Wireframes
        estimated_hours: 6
  - title: Build
    weight: 3
`), 0644))

	root := GetRootCmd()
	root.SetArgs([]string{"migrate"})
	require.NoError(t, root.Execute())

	root.SetArgs([]string{"template", "import", tplPath})
	require.NoError(t, root.Execute())

	// 同名模板需要 --replace
	root.SetArgs([]string{"template", "import", tplPath})
	assert.Error(t, root.Execute())

	db, err := database.Connect(appConfig.Database)
	require.NoError(t, err)
	defer database.Close(db)

	var tpl model.MilestoneTemplateModel
	require.NoError(t, db.Where("name = ?", "website-launch").First(&tpl).Error)
	spec, err := tpl.Spec()
	require.NoError(t, err)
	require.Len(t, spec.Milestones, 2)
	assert.Equal(t, "Wireframes", spec.Milestones[0].Tasks[0].Title)

	root.SetArgs([]string{"migrate", "--check"})
	assert.NoError(t, root.Execute())
}
