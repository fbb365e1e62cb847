package api

import (
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/config"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/AbuAli85/business-services-hub-sub014/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Dependencies 路由需要的服务
type Dependencies struct {
	Config        *config.Config
	Logger        logrus.FieldLogger
	Validator     auth.TokenValidator
	Progress      service.ProgressService
	Tasks         service.TaskService
	Templates     service.TemplateService
	Query         service.QueryService
	Statistics    service.StatisticsService
	Subscriptions service.SubscriptionService
	WebSocket     *websocket.Handler
	Health        *HealthController
	SLAAlerts     *SLAAlertManager
}

// SetupRoutes 配置路由
func SetupRoutes(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}
	router.Use(RequestLogMiddleware(deps.Logger))
	router.Use(I18nMiddleware())
	router.Use(VersionMiddleware())
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(HTTPSRedirectMiddleware(cfg.Server.HTTPSRedirect))
	router.Use(SLAMonitorMiddleware(nil, deps.SLAAlerts, deps.Logger))
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	router.GET("/health", deps.Health.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	authn := auth.KeycloakAuthMiddleware(deps.Validator)

	// 实时推送，浏览器通过 ?token= 认证
	if deps.WebSocket != nil {
		router.GET("/ws/bookings/:id", authn, deps.WebSocket.ServeBooking)
	}
	router.GET("/sse/bookings/:id", authn, SSEHandler(deps.Subscriptions, 30*time.Second))

	progress := NewProgressController(deps.Progress, deps.Query)
	tasks := NewTaskController(deps.Tasks)
	templates := NewTemplateController(deps.Templates)
	stats := NewStatisticsController(deps.Statistics)

	v1 := router.Group("/api/v1")
	v1.Use(authn, RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	{
		bookings := v1.Group("/bookings/:id")
		{
			bookings.GET("/progress", progress.GetProgress)
			bookings.GET("/status", progress.GetStatus)
			bookings.POST("/recompute", progress.Recompute)
			bookings.GET("/tasks", progress.ListTasks)
			bookings.GET("/events", progress.ListEvents)
			bookings.POST("/milestones", tasks.CreateMilestone)
			bookings.POST("/apply-template", templates.Apply)
		}

		milestones := v1.Group("/milestones/:id")
		{
			milestones.PATCH("", tasks.UpdateMilestone)
			milestones.DELETE("", tasks.DeleteMilestone)
			milestones.POST("/tasks", tasks.CreateTask)
			milestones.GET("/history", progress.MilestoneHistory)
		}

		taskGroup := v1.Group("/tasks/:id")
		{
			taskGroup.PATCH("", tasks.UpdateTask)
			taskGroup.DELETE("", tasks.DeleteTask)
			taskGroup.GET("/history", progress.TaskHistory)
		}

		tpl := v1.Group("/templates")
		{
			tpl.GET("", templates.List)
			tpl.GET("/:id", templates.Get)
			tpl.POST("", auth.RequireRole(auth.RoleAdmin), templates.Create)
			tpl.DELETE("/:id", auth.RequireRole(auth.RoleAdmin), templates.Delete)
		}

		statsGroup := v1.Group("/stats", auth.RequireRole(auth.RoleAdmin))
		{
			statsGroup.GET("/tasks", stats.Tasks)
			statsGroup.GET("/outbox", stats.Outbox)
		}
	}

	return router
}
