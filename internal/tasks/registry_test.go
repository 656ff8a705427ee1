package tasks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TestRegistry 测试注册表查找和排序
func TestRegistry(t *testing.T) {
	registry, err := tasks.DefaultRegistry(quietLogger())
	require.NoError(t, err)

	def, err := registry.Lookup("example")
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version())

	_, err = registry.Lookup("missing")
	assert.ErrorIs(t, err, tasks.ErrUnknownTask)

	require.Len(t, registry.All(), 1)
}

// TestRegistry_Duplicate 测试重复注册
func TestRegistry_Duplicate(t *testing.T) {
	_, err := tasks.NewRegistry(tasks.NewExample(nil), tasks.NewExample(nil))
	assert.Error(t, err)
}

// TestExample_Params 测试示例任务的 HIT 参数
func TestExample_Params(t *testing.T) {
	example := tasks.NewExample(quietLogger())

	params, err := example.Params(json.RawMessage(`{"text": "hello"}`))
	require.NoError(t, err)
	require.NoError(t, params.Validate())
	assert.Equal(t, 3, params.MaxAssignments)

	_, err = example.Params(json.RawMessage(`{broken`))
	assert.Error(t, err)
}

// TestExample_OnHITComplete 测试输出不合法时保持待标注
func TestExample_OnHITComplete(t *testing.T) {
	ctx := context.Background()
	example := tasks.NewExample(quietLogger())
	hit := &model.HITModel{ID: "HIT1"}

	ready, err := example.OnHITComplete(ctx, hit, []*model.AssignmentModel{
		{ID: "A1", OutputData: json.RawMessage(`{"label": "cat"}`)},
	})
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = example.OnHITComplete(ctx, hit, []*model.AssignmentModel{
		{ID: "A2", OutputData: json.RawMessage(`nope`)},
	})
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, example.OnAssignmentReceived(ctx, &model.AssignmentModel{ID: "A1", HITID: "HIT1"}))
	require.NoError(t, example.OnBatchComplete(ctx, &model.BatchModel{ID: "b1"}))
}

// TestBase_Render 测试默认页面
func TestBase_Render(t *testing.T) {
	example := tasks.NewExample(quietLogger())
	view := &tasks.View{
		HIT:          &model.HITModel{ID: "HIT1", InputData: json.RawMessage(`{"text": "<b>hi</b>"}`)},
		AssignmentID: "A1",
		WorkerID:     "W1",
		SubmitURL:    "https://workersandbox.mturk.com/mturk/externalSubmit",
		AnswerField:  "output",
	}

	var buf bytes.Buffer
	require.NoError(t, example.Render(&buf, view))
	page := buf.String()
	assert.Contains(t, page, `action="https://workersandbox.mturk.com/mturk/externalSubmit"`)
	assert.Contains(t, page, `name="output"`)
	assert.Contains(t, page, `type="submit"`)
	assert.NotContains(t, page, "<b>hi</b>")

	// 预览时不显示提交按钮
	view.AssignmentID = tasks.Preview
	buf.Reset()
	require.NoError(t, example.Render(&buf, view))
	assert.NotContains(t, buf.String(), `type="submit"`)
}
