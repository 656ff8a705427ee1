package api

import (
	"context"
	"encoding/json"

	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/tasks"
)

// Lifecycle 控制器依赖的生命周期操作
type Lifecycle interface {
	CreateBatch(ctx context.Context, taskName string, inputs []json.RawMessage) (*model.BatchModel, error)
	GetBatch(ctx context.Context, id string) (*model.BatchModel, error)
	ListBatches(ctx context.Context, states ...model.BatchState) ([]*model.BatchModel, error)
	SyncBatch(ctx context.Context, batchID string) error
	CancelBatch(ctx context.Context, batchID string) (*model.BatchModel, error)

	GetHIT(ctx context.Context, id string) (*model.HITModel, error)
	ListHITs(ctx context.Context, batchID string) ([]*model.HITModel, error)
	SyncHIT(ctx context.Context, hitID string) error
	ExtendHIT(ctx context.Context, hitID string, count int) (*model.HITModel, error)
	CancelHIT(ctx context.Context, hitID string) (*model.HITModel, error)
	SetHITOutput(ctx context.Context, hitID string, output json.RawMessage) (*model.HITModel, error)

	GetAssignment(ctx context.Context, id string) (*model.AssignmentModel, error)
	ListAssignments(ctx context.Context, hitID string) ([]*model.AssignmentModel, error)
	SyncAssignment(ctx context.Context, assignmentID string) (*model.AssignmentModel, error)
	ApproveAssignment(ctx context.Context, assignmentID string) (*model.AssignmentModel, error)
	RejectAssignment(ctx context.Context, assignmentID, message string) (*model.AssignmentModel, error)

	History(ctx context.Context, entityType, entityID string) ([]*model.StateHistoryModel, error)
	Definition(ctx context.Context, batchID string) (tasks.Definition, error)
	Tasks() []tasks.Definition
	AnswerField() string
}
