package lifecycle

import (
	"context"

	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/tasks"
)

// ActiveBatchStates 需要定期同步的批次状态
var ActiveBatchStates = []model.BatchState{
	model.BatchStatePendingAnnotation,
	model.BatchStatePendingAggregation,
}

// GetBatch 获取批次
func (m *Manager) GetBatch(ctx context.Context, id string) (*model.BatchModel, error) {
	return m.batches.FindByID(ctx, id)
}

// ListBatches 列出批次, 不传状态时返回全部
func (m *Manager) ListBatches(ctx context.Context, states ...model.BatchState) ([]*model.BatchModel, error) {
	return m.batches.FindByStates(ctx, states...)
}

// ListActiveBatches 列出需要同步的批次
func (m *Manager) ListActiveBatches(ctx context.Context) ([]*model.BatchModel, error) {
	return m.batches.FindByStates(ctx, ActiveBatchStates...)
}

// GetHIT 获取 HIT
func (m *Manager) GetHIT(ctx context.Context, id string) (*model.HITModel, error) {
	return m.hits.FindByID(ctx, id)
}

// ListHITs 列出批次下的 HIT
func (m *Manager) ListHITs(ctx context.Context, batchID string) ([]*model.HITModel, error) {
	return m.hits.FindByBatchID(ctx, batchID)
}

// ListAssignments 列出 HIT 下的作业
func (m *Manager) ListAssignments(ctx context.Context, hitID string) ([]*model.AssignmentModel, error) {
	return m.assignments.FindByHITID(ctx, hitID)
}

// GetAssignment 获取作业
func (m *Manager) GetAssignment(ctx context.Context, id string) (*model.AssignmentModel, error) {
	return m.assignments.FindByID(ctx, id)
}

// History 获取实体的状态历史
func (m *Manager) History(ctx context.Context, entityType, entityID string) ([]*model.StateHistoryModel, error) {
	return m.history.FindByEntity(ctx, entityType, entityID)
}

// Definition 获取批次所属的任务定义
func (m *Manager) Definition(ctx context.Context, batchID string) (tasks.Definition, error) {
	return m.definitionFor(ctx, batchID)
}

// Tasks 已注册的任务定义
func (m *Manager) Tasks() []tasks.Definition {
	return m.registry.All()
}

// AnswerField 答案信封中承载输出的字段名
func (m *Manager) AnswerField() string {
	return m.answerField
}
