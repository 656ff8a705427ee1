package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/websocket"
	"gorm.io/gorm"
)

// SetupRoutes 配置路由
// sandbox 非空时注册模拟 MTurk 提交的接口, hub 非空时注册状态变更推送
func SetupRoutes(db *gorm.DB, lifecycle Lifecycle, sandbox *marketplace.MemoryClient, hub *websocket.Hub, cfg config.ServerConfig) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(TracingMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(ErrorHandlerMiddleware())
	if cfg.RateLimit > 0 {
		router.Use(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}

	// 健康检查
	healthController := NewHealthController(db, lifecycle, sandbox)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// WebSocket 路由
	if hub != nil {
		router.GET("/ws/events", websocket.WebSocketHandler(hub))
		router.GET("/ws/batches/:id", websocket.WebSocketHandler(hub))
	}

	// 工作者页面
	workerController := NewWorkerController(lifecycle, sandbox)
	router.GET("/worker/page", workerController.Page)
	if sandbox != nil {
		router.POST(externalSubmitPath, workerController.Submit)
	}

	batchController := NewBatchController(lifecycle)
	hitController := NewHITController(lifecycle)
	assignmentController := NewAssignmentController(lifecycle)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	v1.Use(SecurityHeadersMiddleware(), ValidateIDParam())
	{
		v1.GET("/tasks", batchController.Tasks)

		batches := v1.Group("/batches")
		{
			batches.POST("", batchController.Create)
			batches.GET("", batchController.List)
			batches.GET("/:id", batchController.Get)
			batches.POST("/:id/sync", batchController.Sync)
			batches.POST("/:id/cancel", batchController.Cancel)
			batches.GET("/:id/hits", batchController.HITs)
			batches.GET("/:id/history", batchController.History)
		}

		hits := v1.Group("/hits")
		{
			hits.GET("/:id", hitController.Get)
			hits.POST("/:id/sync", hitController.Sync)
			hits.POST("/:id/extend", hitController.Extend)
			hits.POST("/:id/cancel", hitController.Cancel)
			hits.PUT("/:id/output", hitController.SetOutput)
			hits.GET("/:id/assignments", hitController.Assignments)
			hits.GET("/:id/history", hitController.History)
		}

		assignments := v1.Group("/assignments")
		{
			assignments.GET("/:id", assignmentController.Get)
			assignments.POST("/:id/sync", assignmentController.Sync)
			assignments.POST("/:id/approve", assignmentController.Approve)
			assignments.POST("/:id/reject", assignmentController.Reject)
			assignments.GET("/:id/history", assignmentController.History)
		}
	}

	return router
}
