package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/marketplace"
	"gorm.io/gorm"
)

const (
	healthHealthy   = "healthy"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
)

// HealthController 健康检查控制器
// 除数据库外还报告市场类型和已注册的任务数
type HealthController struct {
	db        *gorm.DB
	lifecycle Lifecycle
	sandbox   *marketplace.MemoryClient
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, lifecycle Lifecycle, sandbox *marketplace.MemoryClient) *HealthController {
	return &HealthController{db: db, lifecycle: lifecycle, sandbox: sandbox}
}

// Check 健康检查
// 数据库不可用时返回 503; 没有任务定义时服务可用但无法创建批次, 标记为 degraded
func (c *HealthController) Check(ctx *gin.Context) {
	status := healthHealthy
	checks := make(map[string]string)

	if c.db != nil {
		if err := c.checkDatabase(ctx.Request.Context()); err != nil {
			status = healthUnhealthy
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = healthHealthy
		}
	} else {
		checks["database"] = "not configured"
	}

	checks["marketplace"] = "mturk"
	if c.sandbox != nil {
		checks["marketplace"] = "sandbox"
	}

	if c.lifecycle != nil {
		n := len(c.lifecycle.Tasks())
		checks["tasks"] = strconv.Itoa(n) + " registered"
		if n == 0 && status == healthHealthy {
			status = healthDegraded
		}
	}

	httpStatus := http.StatusOK
	if status == healthUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

func (c *HealthController) checkDatabase(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
