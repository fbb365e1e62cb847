package api

import (
	"net/http"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/AbuAli85/business-services-hub-sub014/internal/utils"
	"github.com/gin-gonic/gin"
)

// TaskController 任务与里程碑的变更接口
type TaskController struct {
	taskService service.TaskService
}

// NewTaskController 创建任务控制器
func NewTaskController(taskService service.TaskService) *TaskController {
	return &TaskController{
		taskService: taskService,
	}
}

// requireCaller 取认证后的调用方，缺失时写 401
func requireCaller(ctx *gin.Context) (auth.Caller, bool) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		Error(ctx, http.StatusUnauthorized, T(ctx, "error.unauthorized"), "")
		return auth.Caller{}, false
	}
	return caller, true
}

// pathID 读取并校验路径中的 ID
func pathID(ctx *gin.Context, name string) (string, bool) {
	id := ctx.Param(name)
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, T(ctx, "error.bad_request"), name+": "+err.Error())
		return "", false
	}
	return id, true
}

// respondMutation 变更结果；孤儿实体的写入已提交时错误响应中带上结果
func respondMutation(ctx *gin.Context, res *service.MutationResult, err error, status int) {
	if err != nil {
		var data interface{}
		if res != nil {
			data = res
		}
		HandleError(ctx, err, data)
		return
	}
	if status == http.StatusCreated {
		Created(ctx, res)
		return
	}
	Success(ctx, res)
}

// CreateTask POST /milestones/:id/tasks
func (c *TaskController) CreateTask(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	milestoneID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	res, err := c.taskService.CreateTask(ctx.Request.Context(), caller, milestoneID, &req)
	respondMutation(ctx, res, err, http.StatusCreated)
}

// UpdateTask PATCH /tasks/:id
func (c *TaskController) UpdateTask(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	taskID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.UpdateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	res, err := c.taskService.UpdateTask(ctx.Request.Context(), caller, taskID, &req)
	respondMutation(ctx, res, err, http.StatusOK)
}

// DeleteTask DELETE /tasks/:id
func (c *TaskController) DeleteTask(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	taskID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	res, err := c.taskService.DeleteTask(ctx.Request.Context(), caller, taskID)
	respondMutation(ctx, res, err, http.StatusOK)
}

// CreateMilestone POST /bookings/:id/milestones
func (c *TaskController) CreateMilestone(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.CreateMilestoneRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	res, err := c.taskService.CreateMilestone(ctx.Request.Context(), caller, bookingID, &req)
	respondMutation(ctx, res, err, http.StatusCreated)
}

// UpdateMilestone PATCH /milestones/:id
func (c *TaskController) UpdateMilestone(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	milestoneID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.UpdateMilestoneRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	res, err := c.taskService.UpdateMilestone(ctx.Request.Context(), caller, milestoneID, &req)
	respondMutation(ctx, res, err, http.StatusOK)
}

// DeleteMilestone DELETE /milestones/:id，任务一并删除
func (c *TaskController) DeleteMilestone(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	milestoneID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	res, err := c.taskService.DeleteMilestone(ctx.Request.Context(), caller, milestoneID)
	respondMutation(ctx, res, err, http.StatusOK)
}
