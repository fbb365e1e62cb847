package api

import (
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/gin-gonic/gin"
)

// StatisticsController 运维统计接口，仅管理员
type StatisticsController struct {
	statisticsService service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statisticsService service.StatisticsService) *StatisticsController {
	return &StatisticsController{
		statisticsService: statisticsService,
	}
}

// Tasks GET /stats/tasks
func (c *StatisticsController) Tasks(ctx *gin.Context) {
	stats, err := c.statisticsService.GetTaskStatistics(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, stats)
}

// Outbox GET /stats/outbox
func (c *StatisticsController) Outbox(ctx *gin.Context) {
	stats, err := c.statisticsService.GetOutboxStatistics(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err, nil)
		return
	}
	Success(ctx, stats)
}
