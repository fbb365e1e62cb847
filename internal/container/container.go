package container

import (
	"context"
	"fmt"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/api"
	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/config"
	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/metrics"
	"github.com/AbuAli85/business-services-hub-sub014/internal/mq"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/AbuAli85/business-services-hub-sub014/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理数据库、变更分发、鉴权客户端和各个服务
type Container struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *gorm.DB

	broker    *propagation.Broker
	backplane propagation.Backplane
	redis     *redis.Client

	recalc      *integration.Recalculator
	taskMgr     *integration.TaskManager
	templateMgr *integration.TemplateManager

	authorizer auth.Authorizer
	fgaClient  *auth.OpenFGAClient
	validator  auth.TokenValidator

	publisher  *mq.Publisher
	dispatcher *integration.OutboxDispatcher
	collector  *metrics.Collector
	hub        *websocket.Hub
	slaAlerts  *api.SLAAlertManager

	progressSvc     service.ProgressService
	taskSvc         service.TaskService
	templateSvc     service.TemplateService
	querySvc        service.QueryService
	statisticsSvc   service.StatisticsService
	subscriptionSvc service.SubscriptionService

	cancel  context.CancelFunc
	started bool
}

// NewContainer 创建依赖注入容器
// 外部依赖（Redis、OpenFGA、RabbitMQ）按配置可选，未配置时退回进程内实现
func NewContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Container{cfg: cfg, logger: logger}

	// 1. 数据库，重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(ctx, cfg.Database, 3, time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db

	if err := database.Migrate(db); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 变更分发
	if err := c.initBroker(ctx); err != nil {
		c.Close()
		return nil, err
	}

	// 3. 重算与变更入口
	mode, err := progress.ParseMode(cfg.Progress.Mode)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.recalc = integration.NewRecalculator(db, mode, cfg.Progress.MaxConflictRetries, c.broker, logger)
	c.taskMgr = integration.NewTaskManager(db, c.recalc, logger)
	c.templateMgr = integration.NewTemplateManager(db, c.recalc)

	// 4. 鉴权
	if err := c.initAuth(ctx); err != nil {
		c.Close()
		return nil, err
	}

	// 5. 服务
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	c.progressSvc = service.NewProgressService(db, c.authorizer, c.recalc, audit, logger)
	c.taskSvc = service.NewTaskService(db, c.taskMgr, c.authorizer, audit, logger)
	c.templateSvc = service.NewTemplateService(db, c.templateMgr, c.authorizer, audit, logger)
	c.querySvc = service.NewQueryService(db, c.authorizer)
	c.statisticsSvc = service.NewStatisticsService(db)
	c.subscriptionSvc = service.NewSubscriptionService(db, c.broker, c.authorizer)

	// 6. outbox 投递，未配置 RabbitMQ 时事件留在 outbox 表里
	if cfg.AMQP.URL != "" {
		pub, err := mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize RabbitMQ publisher: %w", err)
		}
		c.publisher = pub
		c.dispatcher = integration.NewOutboxDispatcher(db, pub, integration.DispatcherConfig{
			Interval:   cfg.Outbox.Interval,
			BatchSize:  cfg.Outbox.BatchSize,
			MaxRetries: cfg.Outbox.MaxRetries,
			RoutingKey: mq.RoutingKey,
		}, logger)
	}

	c.collector = metrics.NewCollector(db, repository.NewTaskRepository(db), 30*time.Second, logger)
	c.hub = websocket.NewHub()
	c.slaAlerts = api.NewSLAAlertManager()
	c.slaAlerts.OnAlert(func(operation string, batch []api.SLAViolation) {
		logger.WithFields(logrus.Fields{
			"operation":  operation,
			"violations": len(batch),
		}).Error("SLA alert threshold reached")
	})

	return c, nil
}

func (c *Container) initBroker(ctx context.Context) error {
	pc := c.cfg.Propagation
	var opts []propagation.BrokerOption

	switch pc.Backplane {
	case "", "none":
	case "redis":
		c.redis = redis.NewClient(&redis.Options{
			Addr:     c.cfg.Redis.Addr,
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
		})
		bp, err := propagation.NewRedisBackplane(ctx, c.redis, pc.Channel, c.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis backplane: %w", err)
		}
		c.backplane = bp
	case "postgres":
		if c.db.Dialector.Name() != "postgres" {
			return fmt.Errorf("postgres backplane requires database.driver postgres")
		}
		sqlDB, err := c.db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		c.backplane = propagation.NewPostgresBackplane(sqlDB, database.BuildDSN(c.cfg.Database), pc.Channel, c.logger)
	default:
		return fmt.Errorf("unknown propagation backplane %q", pc.Backplane)
	}

	if c.backplane != nil {
		opts = append(opts, propagation.WithBackplane(c.backplane))
	}
	c.broker = propagation.NewBroker(c.logger, opts...)
	return nil
}

func (c *Container) initAuth(ctx context.Context) error {
	c.validator = auth.NewKeycloakTokenValidator(c.cfg.Keycloak.Issuer, c.cfg.Keycloak.JWKSURL)

	fc := c.cfg.OpenFGA
	if fc.APIURL == "" || fc.StoreID == "" {
		c.authorizer = auth.NewRelationAuthorizer()
		return nil
	}

	client, err := auth.NewOpenFGAClientWithRetry(ctx, fc.APIURL, fc.StoreID, fc.ModelID, 3, time.Second)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenFGA client: %w", err)
	}
	c.fgaClient = client
	c.authorizer = auth.NewFGAAuthorizer(auth.NewCachedChecker(client, auth.NewPermissionCache(30*time.Second)))
	return nil
}

// Start 启动后台任务：跨实例事件接收、outbox 投递、指标采集、WebSocket hub
func (c *Container) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	go func() {
		if err := c.broker.Run(ctx); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("propagation backplane stopped")
		}
	}()
	go c.hub.Run(ctx)

	if c.dispatcher != nil {
		c.dispatcher.Start(ctx)
	}
	go c.collector.Run(ctx)
}

// Router 构建 HTTP 路由
func (c *Container) Router() *gin.Engine {
	health := api.NewHealthController(c.db)
	if c.fgaClient != nil {
		health.AddCheck("openfga", func(ctx context.Context) error {
			if !c.fgaClient.CheckHealth(ctx) {
				return fmt.Errorf("openfga unreachable")
			}
			return nil
		})
	}
	if c.publisher != nil {
		health.AddCheck("amqp", func(context.Context) error {
			if !c.publisher.IsConnected() {
				return fmt.Errorf("rabbitmq disconnected")
			}
			return nil
		})
	}
	if c.redis != nil {
		health.AddCheck("redis", func(ctx context.Context) error {
			return c.redis.Ping(ctx).Err()
		})
	}

	return api.SetupRoutes(api.Dependencies{
		Config:        c.cfg,
		Logger:        c.logger,
		Validator:     c.validator,
		Progress:      c.progressSvc,
		Tasks:         c.taskSvc,
		Templates:     c.templateSvc,
		Query:         c.querySvc,
		Statistics:    c.statisticsSvc,
		Subscriptions: c.subscriptionSvc,
		WebSocket:     websocket.NewHandler(c.hub, c.subscriptionSvc, c.cfg.CORS.AllowedOrigins, c.logger),
		Health:        health,
		SLAAlerts:     c.slaAlerts,
	})
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Recalculator 获取重算器
func (c *Container) Recalculator() *integration.Recalculator {
	return c.recalc
}

// TemplateManager 获取模板管理器
func (c *Container) TemplateManager() *integration.TemplateManager {
	return c.templateMgr
}

// ProgressService 获取进度服务
func (c *Container) ProgressService() service.ProgressService {
	return c.progressSvc
}

// OpenFGAClient 获取 OpenFGA 客户端，未配置时为 nil
func (c *Container) OpenFGAClient() *auth.OpenFGAClient {
	return c.fgaClient
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.started && c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close RabbitMQ publisher")
		}
	}
	if c.backplane != nil {
		if err := c.backplane.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close backplane")
		}
	}
	if c.redis != nil {
		c.redis.Close()
	}
	return database.Close(c.db)
}
