package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/turk-gin/internal/api"
	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/database"
	"github.com/mautops/turk-gin/internal/lifecycle"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/metrics"
	"github.com/mautops/turk-gin/internal/repository"
	"github.com/mautops/turk-gin/internal/service"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/mautops/turk-gin/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、市场客户端、生命周期管理器等
type Container struct {
	db        *gorm.DB
	logger    *logrus.Logger
	client    marketplace.Client
	sandbox   *marketplace.MemoryClient
	registry  *tasks.Registry
	manager   *lifecycle.Manager
	scheduler *service.SyncScheduler
	collector *metrics.Collector
	hub       *websocket.Hub
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	// 1. 初始化日志
	logger, err := api.NewLoggerFromConfig(&cfg.Log, logrus.Fields{"env": cfg.Env})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	api.SetLogger(logger)

	if cfg.Tracing.Enabled {
		if err := api.InitTracing(cfg.Tracing); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		logger.WithField("endpoint", cfg.Tracing.Endpoint).Info("tracing enabled")
	}

	// 2. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 3. 初始化市场客户端
	var (
		client  marketplace.Client
		sandbox *marketplace.MemoryClient
	)
	switch cfg.Marketplace.Driver {
	case "memory":
		sandbox = marketplace.NewMemoryClient()
		client = sandbox
		logger.Warn("using in-memory marketplace, HITs are not published")
	default:
		client, err = marketplace.NewMTurkClient(ctx, marketplace.MTurkOptions{
			Endpoint:          cfg.Marketplace.Endpoint,
			Region:            cfg.Marketplace.Region,
			AccessKeyID:       cfg.Marketplace.AccessKeyID,
			SecretAccessKey:   cfg.Marketplace.SecretAccessKey,
			ExternalURL:       cfg.Marketplace.ExternalURL,
			RequestsPerSecond: cfg.Marketplace.RequestsPerSecond,
			Burst:             cfg.Marketplace.Burst,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MTurk client: %w", err)
		}
	}

	// 4. 初始化任务注册表和生命周期管理器
	hub := websocket.NewHub(logger)
	registry, err := tasks.DefaultRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task registry: %w", err)
	}
	manager := lifecycle.NewManager(db, client, registry, lifecycle.Options{
		AnswerField:            cfg.Marketplace.AnswerField,
		StrictAssignmentStatus: cfg.Sync.StrictAssignmentStatus,
		Notifier:               hub,
	}, logger)
	if err := manager.RegisterTasks(ctx); err != nil {
		return nil, err
	}

	// 5. 初始化同步调度器和指标收集器
	scheduler := service.NewSyncScheduler(manager, service.SyncScheduleConfig{
		Interval:    cfg.Sync.Interval,
		Concurrency: cfg.Sync.Concurrency,
	}, logger)
	collector := metrics.NewCollector(db, repository.NewHITRepository(db), 30*time.Second)

	return &Container{
		db:        db,
		logger:    logger,
		client:    client,
		sandbox:   sandbox,
		registry:  registry,
		manager:   manager,
		scheduler: scheduler,
		collector: collector,
		hub:       hub,
	}, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Marketplace 获取市场客户端
func (c *Container) Marketplace() marketplace.Client {
	return c.client
}

// Sandbox 内存市场, 非 memory 驱动时为 nil
func (c *Container) Sandbox() *marketplace.MemoryClient {
	return c.sandbox
}

// Registry 获取任务注册表
func (c *Container) Registry() *tasks.Registry {
	return c.registry
}

// Manager 获取生命周期管理器
func (c *Container) Manager() *lifecycle.Manager {
	return c.manager
}

// Scheduler 获取同步调度器
func (c *Container) Scheduler() *service.SyncScheduler {
	return c.scheduler
}

// Collector 获取指标收集器
func (c *Container) Collector() *metrics.Collector {
	return c.collector
}

// Hub 获取状态变更推送中心, 需要调用方运行 Run
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// ApplySyncConfig 应用热更新的同步配置
func (c *Container) ApplySyncConfig(cfg config.SyncConfig) {
	c.manager.SetStrictAssignmentStatus(cfg.StrictAssignmentStatus)
	c.scheduler.UpdateConfig(service.SyncScheduleConfig{
		Interval:    cfg.Interval,
		Concurrency: cfg.Concurrency,
	})
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.ShutdownTracing(shutdownCtx); err != nil {
		c.logger.WithError(err).Warn("failed to flush traces")
	}

	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}
