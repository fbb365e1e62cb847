package api

import (
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/gin-gonic/gin"
)

// ProgressController 进度与状态的读取接口
type ProgressController struct {
	progressService service.ProgressService
	queryService    service.QueryService
}

// NewProgressController 创建进度控制器
func NewProgressController(progressService service.ProgressService, queryService service.QueryService) *ProgressController {
	return &ProgressController{
		progressService: progressService,
		queryService:    queryService,
	}
}

// GetProgress GET /bookings/:id/progress
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	p, err := c.progressService.GetProgress(ctx.Request.Context(), caller, bookingID)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, p)
}

// GetStatus GET /bookings/:id/status
func (c *ProgressController) GetStatus(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	s, err := c.progressService.GetDisplayStatus(ctx.Request.Context(), caller, bookingID)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, s)
}

// Recompute POST /bookings/:id/recompute
func (c *ProgressController) Recompute(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	p, err := c.progressService.Recompute(ctx.Request.Context(), caller, bookingID)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, p)
}

// ListTasks GET /bookings/:id/tasks?status=&milestone_id=&overdue=&sort_by=&order=&limit=
func (c *ProgressController) ListTasks(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var filter service.ListTasksFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		badRequest(ctx, err)
		return
	}

	tasks, err := c.queryService.ListTasks(ctx.Request.Context(), caller, bookingID, &filter)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, tasks)
}

// ListEvents GET /bookings/:id/events
func (c *ProgressController) ListEvents(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	events, err := c.queryService.ListEvents(ctx.Request.Context(), caller, bookingID)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, events)
}

// TaskHistory GET /tasks/:id/history
func (c *ProgressController) TaskHistory(ctx *gin.Context) {
	c.history(ctx, model.EntityTask)
}

// MilestoneHistory GET /milestones/:id/history
func (c *ProgressController) MilestoneHistory(ctx *gin.Context) {
	c.history(ctx, model.EntityMilestone)
}

func (c *ProgressController) history(ctx *gin.Context, entityType string) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	history, err := c.queryService.GetHistory(ctx.Request.Context(), caller, entityType, id)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, history)
}
