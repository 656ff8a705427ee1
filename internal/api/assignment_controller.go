package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/utils"
)

// AssignmentController 作业控制器
type AssignmentController struct {
	lifecycle Lifecycle
}

// NewAssignmentController 创建作业控制器
func NewAssignmentController(lifecycle Lifecycle) *AssignmentController {
	return &AssignmentController{lifecycle: lifecycle}
}

// RejectRequest 拒绝作业请求, 理由会展示给工作者
type RejectRequest struct {
	Message string `json:"message" binding:"required"`
}

// Get 获取作业
func (c *AssignmentController) Get(ctx *gin.Context) {
	assignment, err := c.lifecycle.GetAssignment(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "get assignment")
		return
	}
	Success(ctx, assignment)
}

// Sync 立即同步作业状态
func (c *AssignmentController) Sync(ctx *gin.Context) {
	assignment, err := c.lifecycle.SyncAssignment(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "sync assignment")
		return
	}
	Success(ctx, assignment)
}

// Approve 通过作业
func (c *AssignmentController) Approve(ctx *gin.Context) {
	assignment, err := c.lifecycle.ApproveAssignment(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "approve assignment")
		return
	}
	Success(ctx, assignment)
}

// Reject 拒绝作业
func (c *AssignmentController) Reject(ctx *gin.Context) {
	var req RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	message, err := utils.TrimAndValidate(req.Message, utils.MaxFeedbackLength)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid message", err.Error())
		return
	}

	assignment, err := c.lifecycle.RejectAssignment(ctx.Request.Context(), ctx.Param("id"), message)
	if err != nil {
		handleError(ctx, err, "reject assignment")
		return
	}
	Success(ctx, assignment)
}

// History 作业状态历史
func (c *AssignmentController) History(ctx *gin.Context) {
	history, err := c.lifecycle.History(ctx.Request.Context(), model.EntityAssignment, ctx.Param("id"))
	if err != nil {
		handleError(ctx, err, "get history")
		return
	}
	List(ctx, history, len(history))
}
