package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"

	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrUnknownTask 注册表中没有该任务
var ErrUnknownTask = errors.New("unknown task")

// Definition 任务定义
// 每个具体任务提供 HIT 参数, 工作者页面和生命周期回调
type Definition interface {
	Name() string
	Version() int
	// Params 根据单条输入数据生成 HIT 创建参数
	Params(input json.RawMessage) (marketplace.CreateHITParams, error)
	// Render 渲染工作者看到的任务页面
	Render(w io.Writer, view *View) error
	OnAssignmentReceived(ctx context.Context, assignment *model.AssignmentModel) error
	// OnHITComplete 返回 true 表示可以进入聚合阶段
	OnHITComplete(ctx context.Context, hit *model.HITModel, assignments []*model.AssignmentModel) (bool, error)
	OnBatchComplete(ctx context.Context, batch *model.BatchModel) error
}

// View 渲染任务页面所需的数据
type View struct {
	HIT          *model.HITModel
	Input        interface{}
	AssignmentID string
	WorkerID     string
	SubmitURL    string
	AnswerField  string
}

// Preview 工作者尚未接受 HIT 时 MTurk 传入的作业 ID
const Preview = "ASSIGNMENT_ID_NOT_AVAILABLE"

var defaultPage = template.Must(template.New("task").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.HIT.ID}}</title></head>
<body>
<pre>{{printf "%s" .HIT.InputData}}</pre>
<form method="POST" action="{{.SubmitURL}}">
<input type="hidden" name="assignmentId" value="{{.AssignmentID}}">
<input type="hidden" name="hitId" value="{{.HIT.ID}}">
<input type="hidden" name="workerId" value="{{.WorkerID}}">
<textarea name="{{.AnswerField}}"></textarea>
{{if ne .AssignmentID "ASSIGNMENT_ID_NOT_AVAILABLE"}}<input type="submit" name="submit">{{end}}
</form>
</body>
</html>
`))

// Base 默认实现: 渲染通用页面, 回调只记录日志
// 具体任务嵌入 Base 并按需覆盖
type Base struct {
	Logger logrus.FieldLogger
}

func (b *Base) logger() logrus.FieldLogger {
	if b.Logger == nil {
		return logrus.StandardLogger()
	}
	return b.Logger
}

func (b *Base) Render(w io.Writer, view *View) error {
	return defaultPage.Execute(w, view)
}

func (b *Base) OnAssignmentReceived(ctx context.Context, assignment *model.AssignmentModel) error {
	b.logger().WithFields(logrus.Fields{
		"hit_id":        assignment.HITID,
		"assignment_id": assignment.ID,
	}).Info("assignment received")
	return nil
}

func (b *Base) OnHITComplete(ctx context.Context, hit *model.HITModel, assignments []*model.AssignmentModel) (bool, error) {
	b.logger().WithField("hit_id", hit.ID).Info("HIT complete")
	return true, nil
}

func (b *Base) OnBatchComplete(ctx context.Context, batch *model.BatchModel) error {
	b.logger().WithField("batch_id", batch.ID).Info("batch completed")
	return nil
}
