package lifecycle_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mautops/turk-gin/internal/lifecycle"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateBatch 测试为每条输入创建 HIT
func TestCreateBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	batch, hitIDs := h.createBatch(t, 3)
	assert.Equal(t, model.BatchStatePendingAnnotation, batch.State)
	assert.Equal(t, "recording", batch.TaskName)
	assert.Equal(t, 2, batch.TaskVersion)
	require.Len(t, hitIDs, 3)

	hits, err := h.manager.ListHITs(ctx, batch.ID)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.Equal(t, model.HITStatePendingAnnotation, hit.State)
		assert.Equal(t, 3, hit.ExpectedAssignmentCount)
		assert.NotEmpty(t, hit.HITTypeID)

		params, err := h.sandbox.Params(hit.ID)
		require.NoError(t, err)
		assert.Equal(t, "Recording task", params.Title)
	}

	active, err := h.manager.ListActiveBatches(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, batch.ID, active[0].ID)
}

// TestCreateBatch_InvalidInput 测试参数错误
func TestCreateBatch_InvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.manager.CreateBatch(ctx, "recording", nil)
	assert.ErrorIs(t, err, marketplace.ErrMissingParam)

	_, err = h.manager.CreateBatch(ctx, "missing", []json.RawMessage{json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, tasks.ErrUnknownTask)
}

// TestCreateBatch_UploadFailure 测试上传中途失败时批次停留在 uploading
func TestCreateBatch_UploadFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.task.maxAssignments = 0

	batch, err := h.manager.CreateBatch(ctx, "recording", []json.RawMessage{json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, marketplace.ErrMissingParam)
	require.NotNil(t, batch)
	assert.Equal(t, model.BatchStateUploading, h.batchState(t, batch.ID))

	// 上传中的批次同步时不推导状态
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	assert.Equal(t, model.BatchStateUploading, h.batchState(t, batch.ID))
}

// TestSyncBatch_Aggregates 测试批次状态随 HIT 推进并只触发一次完成回调
func TestSyncBatch_Aggregates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	batch, hitIDs := h.createBatch(t, 2)

	for _, hitID := range hitIDs {
		for _, worker := range []string{"W1", "W2", "W3"} {
			h.submit(t, hitID, worker)
		}
	}
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	for _, hitID := range hitIDs {
		assert.Equal(t, model.HITStatePendingAggregation, h.hitState(t, hitID))
	}
	assert.Equal(t, model.BatchStatePendingAggregation, h.batchState(t, batch.ID))

	for _, hitID := range hitIDs {
		require.NoError(t, h.sandbox.SetHITStatus(hitID, marketplace.HITStatusDisposed))
	}
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))

	assert.Equal(t, model.BatchStateDone, h.batchState(t, batch.ID))
	_, hitComplete, batchComplete := h.task.counts()
	assert.Equal(t, 2, hitComplete)
	assert.Equal(t, 1, batchComplete)

	active, err := h.manager.ListActiveBatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// TestSyncBatch_IgnoresCancelledHITs 测试已取消的 HIT 不参与聚合
func TestSyncBatch_IgnoresCancelledHITs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	batch, hitIDs := h.createBatch(t, 2)

	_, err := h.manager.CancelHIT(ctx, hitIDs[0])
	require.NoError(t, err)
	for _, worker := range []string{"W1", "W2", "W3"} {
		h.submit(t, hitIDs[1], worker)
	}

	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	assert.Equal(t, model.BatchStatePendingAggregation, h.batchState(t, batch.ID))
}

// TestSyncBatch_AllCancelled 测试所有 HIT 都已取消时批次取消
func TestSyncBatch_AllCancelled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	batch, hitIDs := h.createBatch(t, 2)

	for _, hitID := range hitIDs {
		require.NoError(t, h.sandbox.SetHITStatus(hitID, marketplace.HITStatusDisposed))
	}
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	assert.Equal(t, model.BatchStateCancelled, h.batchState(t, batch.ID))
}

// TestSyncBatch_ContinuesAfterFailure 测试单个 HIT 失败不影响其他 HIT
func TestSyncBatch_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	batch, hitIDs := h.createBatch(t, 2)

	require.NoError(t, h.sandbox.SetHITStatus(hitIDs[0], "Archived"))
	for _, worker := range []string{"W1", "W2", "W3"} {
		h.submit(t, hitIDs[1], worker)
	}

	err := h.manager.SyncBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, lifecycle.ErrUnknownStatus)
	assert.Equal(t, model.HITStatePendingAnnotation, h.hitState(t, hitIDs[0]))
	assert.Equal(t, model.HITStatePendingAggregation, h.hitState(t, hitIDs[1]))
	assert.Equal(t, model.BatchStatePendingAnnotation, h.batchState(t, batch.ID))
}

// TestCancelBatch 测试取消批次下所有 HIT
func TestCancelBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	batch, hitIDs := h.createBatch(t, 3)

	cancelled, err := h.manager.CancelBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStateCancelled, cancelled.State)

	for _, hitID := range hitIDs {
		assert.Equal(t, model.HITStateCancelled, h.hitState(t, hitID))
		remote, err := h.sandbox.GetHIT(ctx, hitID)
		require.NoError(t, err)
		assert.Equal(t, marketplace.HITStatusDisposed, remote.Status)
	}

	history, err := h.manager.History(ctx, model.EntityBatch, batch.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, string(model.BatchStateCancelled), history[1].ToState)

	// 重复取消直接返回
	cancelled, err = h.manager.CancelBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStateCancelled, cancelled.State)
}

// TestCancelBatch_AllOrNothing 测试任一 HIT 不可撤销时整个批次保持不变
func TestCancelBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	batch, hitIDs := h.createBatch(t, 3)

	// 最后一个 HIT 有待审核作业
	h.submit(t, hitIDs[2], "W1")

	_, err := h.manager.CancelBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, marketplace.ErrHITMustBeReviewed)

	assert.Equal(t, model.BatchStatePendingAnnotation, h.batchState(t, batch.ID))
	for _, hitID := range hitIDs {
		assert.Equal(t, model.HITStatePendingAnnotation, h.hitState(t, hitID))
		remote, err := h.sandbox.GetHIT(ctx, hitID)
		require.NoError(t, err)
		assert.Equal(t, marketplace.HITStatusAssignable, remote.Status)
	}
}

// TestCancelBatch_AggregatingHIT 测试批次中有 HIT 正在聚合时拒绝取消
func TestCancelBatch_AggregatingHIT(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.task.maxAssignments = 1
	batch, hitIDs := h.createBatch(t, 2)

	h.submit(t, hitIDs[0], "W1")
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	require.Equal(t, model.HITStatePendingAggregation, h.hitState(t, hitIDs[0]))
	require.Equal(t, model.BatchStatePendingAnnotation, h.batchState(t, batch.ID))

	_, err := h.manager.CancelBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	assert.Equal(t, model.BatchStatePendingAnnotation, h.batchState(t, batch.ID))
	assert.Equal(t, model.HITStatePendingAggregation, h.hitState(t, hitIDs[0]))
	assert.Equal(t, model.HITStatePendingAnnotation, h.hitState(t, hitIDs[1]))
	remote, err := h.sandbox.GetHIT(ctx, hitIDs[1])
	require.NoError(t, err)
	assert.Equal(t, marketplace.HITStatusAssignable, remote.Status)

	history, err := h.manager.History(ctx, model.EntityBatch, batch.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// TestCancelBatch_Done 测试已完成的批次不能取消
func TestCancelBatch_Done(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	batch, hitIDs := h.createBatch(t, 1)

	for _, worker := range []string{"W1", "W2", "W3"} {
		h.submit(t, hitIDs[0], worker)
	}
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	require.NoError(t, h.sandbox.SetHITStatus(hitIDs[0], marketplace.HITStatusDisposed))
	require.NoError(t, h.manager.SyncBatch(ctx, batch.ID))
	require.Equal(t, model.BatchStateDone, h.batchState(t, batch.ID))

	_, err := h.manager.CancelBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

// TestListBatches 测试按状态过滤
func TestListBatches(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	first, _ := h.createBatch(t, 1)
	second, _ := h.createBatch(t, 1)

	_, err := h.manager.CancelBatch(ctx, second.ID)
	require.NoError(t, err)

	all, err := h.manager.ListBatches(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cancelled, err := h.manager.ListBatches(ctx, model.BatchStateCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, second.ID, cancelled[0].ID)

	pending, err := h.manager.ListBatches(ctx, model.BatchStatePendingAnnotation)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)
}
