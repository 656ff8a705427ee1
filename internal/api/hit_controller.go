package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/model"
)

// HITController HIT 控制器
type HITController struct {
	lifecycle Lifecycle
}

// NewHITController 创建 HIT 控制器
func NewHITController(lifecycle Lifecycle) *HITController {
	return &HITController{lifecycle: lifecycle}
}

// ExtendHITRequest 追加作业请求
type ExtendHITRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

// SetOutputRequest 写入聚合结果请求
type SetOutputRequest struct {
	Output json.RawMessage `json:"output" binding:"required"`
}

// Get 获取 HIT
func (c *HITController) Get(ctx *gin.Context) {
	hit, err := c.lifecycle.GetHIT(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "get HIT")
		return
	}
	Success(ctx, hit)
}

// Sync 立即同步 HIT
func (c *HITController) Sync(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.lifecycle.SyncHIT(ctx.Request.Context(), id); err != nil {
		handleError(ctx, err, "sync HIT")
		return
	}
	c.Get(ctx)
}

// Extend 追加作业名额
func (c *HITController) Extend(ctx *gin.Context) {
	var req ExtendHITRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	hit, err := c.lifecycle.ExtendHIT(ctx.Request.Context(), ctx.Param("id"), req.Count)
	if err != nil {
		handleError(ctx, err, "extend HIT")
		return
	}
	Success(ctx, hit)
}

// Cancel 撤销 HIT
func (c *HITController) Cancel(ctx *gin.Context) {
	hit, err := c.lifecycle.CancelHIT(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "cancel HIT")
		return
	}
	Success(ctx, hit)
}

// SetOutput 写入聚合结果
func (c *HITController) SetOutput(ctx *gin.Context) {
	var req SetOutputRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	hit, err := c.lifecycle.SetHITOutput(ctx.Request.Context(), ctx.Param("id"), req.Output)
	if err != nil {
		handleError(ctx, err, "set HIT output")
		return
	}
	Success(ctx, hit)
}

// Assignments 列出 HIT 下的作业
func (c *HITController) Assignments(ctx *gin.Context) {
	id := ctx.Param("id")
	if _, err := c.lifecycle.GetHIT(ctx.Request.Context(), id); err != nil {
		handleError(ctx, err, "get HIT")
		return
	}
	assignments, err := c.lifecycle.ListAssignments(ctx.Request.Context(), id)
	if err != nil {
		handleError(ctx, err, "list assignments")
		return
	}
	List(ctx, assignments, len(assignments))
}

// History HIT 状态历史
func (c *HITController) History(ctx *gin.Context) {
	history, err := c.lifecycle.History(ctx.Request.Context(), model.EntityHIT, ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "get history")
		return
	}
	List(ctx, history, len(history))
}
