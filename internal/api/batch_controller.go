package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/model"
)

// BatchController 批次控制器
type BatchController struct {
	lifecycle Lifecycle
}

// NewBatchController 创建批次控制器
func NewBatchController(lifecycle Lifecycle) *BatchController {
	return &BatchController{lifecycle: lifecycle}
}

// CreateBatchRequest 创建批次请求
type CreateBatchRequest struct {
	Task   string            `json:"task" binding:"required"`
	Inputs []json.RawMessage `json:"inputs" binding:"required,min=1"`
}

// Create 创建批次并上传 HIT
func (c *BatchController) Create(ctx *gin.Context) {
	var req CreateBatchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	batch, err := c.lifecycle.CreateBatch(ctx.Request.Context(), req.Task, req.Inputs)
	if err != nil {
		handleError(ctx, err, "create batch")
		return
	}
	Created(ctx, batch)
}

// List 列出批次, 可按 state 过滤, 多个状态用逗号分隔
func (c *BatchController) List(ctx *gin.Context) {
	var states []model.BatchState
	if raw := ctx.Query("state"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			state := model.BatchState(strings.TrimSpace(s))
			if !state.Valid() {
				Error(ctx, http.StatusBadRequest, "invalid state", s)
				return
			}
			states = append(states, state)
		}
	}

	batches, err := c.lifecycle.ListBatches(ctx.Request.Context(), states...)
	if err != nil {
		handleError(ctx, err, "list batches")
		return
	}
	List(ctx, batches, len(batches))
}

// Get 获取批次
func (c *BatchController) Get(ctx *gin.Context) {
	batch, err := c.lifecycle.GetBatch(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "get batch")
		return
	}
	Success(ctx, batch)
}

// Sync 立即同步批次
func (c *BatchController) Sync(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.lifecycle.SyncBatch(ctx.Request.Context(), id); err != nil {
		handleError(ctx, err, "sync batch")
		return
	}
	batch, err := c.lifecycle.GetBatch(ctx.Request.Context(), id)
	if err != nil {
		handleError(ctx, err, "get batch")
		return
	}
	Success(ctx, batch)
}

// Cancel 取消批次
func (c *BatchController) Cancel(ctx *gin.Context) {
	batch, err := c.lifecycle.CancelBatch(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "cancel batch")
		return
	}
	Success(ctx, batch)
}

// HITs 列出批次下的 HIT
func (c *BatchController) HITs(ctx *gin.Context) {
	id := ctx.Param("id")
	if _, err := c.lifecycle.GetBatch(ctx.Request.Context(), id); err != nil {
		handleError(ctx, err, "get batch")
		return
	}
	hits, err := c.lifecycle.ListHITs(ctx.Request.Context(), id)
	if err != nil {
		handleError(ctx, err, "list HITs")
		return
	}
	List(ctx, hits, len(hits))
}

// History 批次状态历史
func (c *BatchController) History(ctx *gin.Context) {
	history, err := c.lifecycle.History(ctx.Request.Context(), model.EntityBatch, ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "get history")
		return
	}
	List(ctx, history, len(history))
}

// TaskInfo 已注册的任务
type TaskInfo struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// Tasks 列出可用于创建批次的任务
func (c *BatchController) Tasks(ctx *gin.Context) {
	defs := c.lifecycle.Tasks()
	result := make([]TaskInfo, 0, len(defs))
	for _, def := range defs {
		result = append(result, TaskInfo{Name: def.Name(), Version: def.Version()})
	}
	List(ctx, result, len(result))
}
