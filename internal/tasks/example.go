package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// Example 示例任务: 每条输入发布一个 3 人作答的 HIT
type Example struct {
	Base
}

// NewExample 创建示例任务
func NewExample(logger logrus.FieldLogger) *Example {
	return &Example{Base: Base{Logger: logger}}
}

func (e *Example) Name() string { return "example" }

func (e *Example) Version() int { return 1 }

func (e *Example) Params(input json.RawMessage) (marketplace.CreateHITParams, error) {
	if !json.Valid(input) {
		return marketplace.CreateHITParams{}, fmt.Errorf("example: input is not valid JSON")
	}
	return marketplace.CreateHITParams{
		Title:                       "Short title",
		Description:                 "Longer description",
		FrameHeight:                 1200,
		AssignmentDurationInSeconds: 300,
		LifetimeInSeconds:           86400,
		MaxAssignments:              3,
		Reward:                      "0.10",
	}, nil
}

// OnHITComplete 所有作业的输出都是合法 JSON 时进入聚合
func (e *Example) OnHITComplete(ctx context.Context, hit *model.HITModel, assignments []*model.AssignmentModel) (bool, error) {
	for _, a := range assignments {
		if !json.Valid(a.OutputData) {
			e.logger().WithFields(logrus.Fields{
				"hit_id":        hit.ID,
				"assignment_id": a.ID,
			}).Warn("assignment output is not valid JSON, holding HIT")
			return false, nil
		}
	}
	return e.Base.OnHITComplete(ctx, hit, assignments)
}
