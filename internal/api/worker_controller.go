package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/tasks"
)

// externalSubmitPath MTurk 接收 ExternalQuestion 表单的路径
const externalSubmitPath = "/mturk/externalSubmit"

// WorkerController 工作者页面控制器
// Page 是 ExternalQuestion 指向的页面, Submit 只在内存市场下注册
type WorkerController struct {
	lifecycle Lifecycle
	sandbox   *marketplace.MemoryClient
}

// NewWorkerController 创建工作者页面控制器
func NewWorkerController(lifecycle Lifecycle, sandbox *marketplace.MemoryClient) *WorkerController {
	return &WorkerController{lifecycle: lifecycle, sandbox: sandbox}
}

// Page 渲染工作者页面
// MTurk 通过 hitId, assignmentId, workerId, turkSubmitTo 查询参数传入上下文
func (c *WorkerController) Page(ctx *gin.Context) {
	hitID := ctx.Query("hitId")
	if hitID == "" {
		Error(ctx, http.StatusBadRequest, "invalid request", "hitId is required")
		return
	}

	hit, err := c.lifecycle.GetHIT(ctx.Request.Context(), hitID)
	if err != nil {
		handleError(ctx, err, "get HIT")
		return
	}
	def, err := c.lifecycle.Definition(ctx.Request.Context(), hit.BatchID)
	if err != nil {
		handleError(ctx, err, "load task")
		return
	}

	var input interface{}
	if err := json.Unmarshal(hit.InputData, &input); err != nil {
		handleError(ctx, err, "decode HIT input")
		return
	}

	assignmentID := ctx.DefaultQuery("assignmentId", tasks.Preview)
	view := &tasks.View{
		HIT:          hit,
		Input:        input,
		AssignmentID: assignmentID,
		WorkerID:     ctx.Query("workerId"),
		SubmitURL:    strings.TrimRight(ctx.Query("turkSubmitTo"), "/") + externalSubmitPath,
		AnswerField:  c.lifecycle.AnswerField(),
	}

	var buf bytes.Buffer
	if err := def.Render(&buf, view); err != nil {
		handleError(ctx, err, "render task page")
		return
	}
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// SubmitResult 沙箱提交结果
type SubmitResult struct {
	AssignmentID string `json:"assignment_id"`
}

// Submit 接收工作者表单并在内存市场中生成作业
func (c *WorkerController) Submit(ctx *gin.Context) {
	if err := ctx.Request.ParseForm(); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid form", err.Error())
		return
	}
	form := ctx.Request.PostForm

	hitID := form.Get("hitId")
	workerID := form.Get("workerId")
	if hitID == "" || workerID == "" {
		Error(ctx, http.StatusBadRequest, "invalid form", "hitId and workerId are required")
		return
	}
	if form.Get("assignmentId") == tasks.Preview {
		Error(ctx, http.StatusBadRequest, "invalid form", "HIT has not been accepted")
		return
	}

	fields := make(map[string]string)
	for key, values := range form {
		switch key {
		case "assignmentId", "hitId", "workerId", "submit":
			continue
		}
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	id, err := c.sandbox.Submit(hitID, workerID, fields)
	if err != nil {
		handleError(ctx, err, "submit assignment")
		return
	}
	Created(ctx, SubmitResult{AssignmentID: id})
}
