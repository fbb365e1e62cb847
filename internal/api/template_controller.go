package api

import (
	"net/http"

	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/gin-gonic/gin"
)

// TemplateController 里程碑模板接口
type TemplateController struct {
	templateService service.TemplateService
}

// NewTemplateController 创建模板控制器
func NewTemplateController(templateService service.TemplateService) *TemplateController {
	return &TemplateController{
		templateService: templateService,
	}
}

// Create POST /templates，仅管理员
func (c *TemplateController) Create(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}

	var req service.CreateTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	view, err := c.templateService.Create(ctx.Request.Context(), caller, &req)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Created(ctx, view)
}

// Get GET /templates/:id
func (c *TemplateController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.templateService.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, view)
}

// List GET /templates
func (c *TemplateController) List(ctx *gin.Context) {
	views, err := c.templateService.List(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, views)
}

// Delete DELETE /templates/:id，仅管理员；已生成的里程碑不受影响
func (c *TemplateController) Delete(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.templateService.Delete(ctx.Request.Context(), caller, id); err != nil {
		HandleError(ctx, err, nil)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// Apply POST /bookings/:id/apply-template
func (c *TemplateController) Apply(ctx *gin.Context) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	bookingID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.ApplyTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	res, err := c.templateService.Apply(ctx.Request.Context(), caller, bookingID, &req)
	respondMutation(ctx, res, err, http.StatusCreated)
}
