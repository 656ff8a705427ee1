package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/metrics"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// CreateBatch 为每条输入在市场上创建一个 HIT
// 上传过程中失败时批次停留在 uploading, 已创建的 HIT 保留记录
func (m *Manager) CreateBatch(ctx context.Context, taskName string, inputs []json.RawMessage) (*model.BatchModel, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: batch needs at least one input", marketplace.ErrMissingParam)
	}
	def, err := m.registry.Lookup(taskName)
	if err != nil {
		return nil, err
	}
	if err := m.taskRecords.Ensure(ctx, &model.TaskModel{Name: def.Name(), Version: def.Version()}); err != nil {
		return nil, fmt.Errorf("failed to register task %s: %w", def.Name(), err)
	}

	batch := &model.BatchModel{
		ID:          uuid.New().String(),
		TaskName:    def.Name(),
		TaskVersion: def.Version(),
		State:       model.BatchStateUploading,
		Version:     1,
		CreatedAt:   time.Now(),
	}
	if err := m.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save batch: %w", err)
	}
	log := m.logger.WithFields(logrus.Fields{"batch_id": batch.ID, "task": def.Name()})

	for i, input := range inputs {
		params, err := def.Params(input)
		if err != nil {
			return batch, fmt.Errorf("input %d: %w", i, err)
		}
		if err := params.Validate(); err != nil {
			return batch, fmt.Errorf("input %d: %w", i, err)
		}

		created, err := m.client.CreateHIT(ctx, params)
		if err != nil {
			return batch, fmt.Errorf("failed to create HIT for input %d: %w", i, err)
		}
		hit := &model.HITModel{
			ID:                      created.HITID,
			HITTypeID:               created.HITTypeID,
			BatchID:                 batch.ID,
			InputData:               input,
			ExpectedAssignmentCount: params.MaxAssignments,
			State:                   model.HITStatePendingAnnotation,
			Version:                 1,
			CreatedAt:               time.Now(),
		}
		if err := m.hits.Create(ctx, hit); err != nil {
			log.WithError(err).WithField("hit_id", created.HITID).Error("remote HIT created but not saved locally")
			return batch, fmt.Errorf("failed to save HIT %s: %w", created.HITID, err)
		}
		log.WithField("hit_id", hit.ID).Debug("HIT uploaded")
	}

	if err := m.advanceBatch(ctx, batch, model.BatchStatePendingAnnotation, "upload finished"); err != nil {
		return batch, err
	}
	log.WithField("hits", len(inputs)).Info("batch uploaded")
	return batch, nil
}

// SyncBatch 依次同步批次下所有未结束的 HIT, 再推导批次状态
// 单个 HIT 失败不影响其他 HIT, 所有错误合并返回
func (m *Manager) SyncBatch(ctx context.Context, batchID string) error {
	unlock := m.locks.Lock(batchKey(batchID))
	defer unlock()

	err := m.syncBatch(ctx, batchID)
	metrics.RecordSync(model.EntityBatch, err)
	return err
}

func (m *Manager) syncBatch(ctx context.Context, batchID string) error {
	batch, err := m.batches.FindByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to get batch %s: %w", batchID, err)
	}
	if batch.State.IsTerminal() {
		return nil
	}
	def, err := m.definitionForBatch(batch)
	if err != nil {
		return err
	}

	hits, err := m.hits.FindByBatchID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load HITs for batch %s: %w", batchID, err)
	}

	var errs []error
	for _, hit := range hits {
		if hit.State.IsTerminal() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		hitErr := func() error {
			unlock := m.locks.Lock(hitKey(hit.ID))
			defer unlock()
			// 重新读取, 其他同步可能已修改
			fresh, err := m.hits.FindByID(ctx, hit.ID)
			if err != nil {
				return err
			}
			*hit = *fresh
			return m.syncHIT(ctx, hit, def)
		}()
		metrics.RecordSync(model.EntityHIT, hitErr)
		if hitErr != nil {
			m.logger.WithError(hitErr).WithFields(logrus.Fields{
				"batch_id": batchID,
				"hit_id":   hit.ID,
			}).Error("HIT sync failed")
			errs = append(errs, fmt.Errorf("HIT %s: %w", hit.ID, hitErr))
		}
	}

	if batch.State != model.BatchStateUploading {
		if err := m.aggregateBatch(ctx, batch, hits); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.batches.Touch(ctx, batch); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// aggregateBatch 根据 HIT 状态推导批次状态
// 全部取消 -> cancelled; 未取消的全部完成 -> done 并触发回调;
// 未取消的全部进入聚合或完成 -> pending_aggregation
func (m *Manager) aggregateBatch(ctx context.Context, batch *model.BatchModel, hits []*model.HITModel) error {
	if len(hits) == 0 {
		return nil
	}
	var active, aggregated, done int
	for _, hit := range hits {
		switch hit.State {
		case model.HITStateCancelled:
			continue
		case model.HITStateDone:
			done++
			aggregated++
		case model.HITStatePendingAggregation:
			aggregated++
		}
		active++
	}

	switch {
	case active == 0:
		return m.advanceBatch(ctx, batch, model.BatchStateCancelled, "all HITs cancelled")
	case done == active:
		if batch.State == model.BatchStateDone {
			return nil
		}
		if err := m.advanceBatch(ctx, batch, model.BatchStateDone, "all HITs done"); err != nil {
			return err
		}
		def, err := m.definitionForBatch(batch)
		if err != nil {
			return err
		}
		if err := def.OnBatchComplete(ctx, batch); err != nil {
			return fmt.Errorf("batch complete callback for %s: %w", batch.ID, err)
		}
		return nil
	case aggregated == active && batch.State == model.BatchStatePendingAnnotation:
		return m.advanceBatch(ctx, batch, model.BatchStatePendingAggregation, "all HITs annotated")
	}
	return nil
}

// CancelBatch 取消批次下所有未结束的 HIT, 要么全部取消要么都不变
// 任一 HIT 已进入聚合时直接返回 ErrInvalidTransition, 已完成和已取消的 HIT 跳过;
// 先检查每个 HIT 都可安全撤销, 再逐个撤销, 最后在一个事务中提交本地状态;
// 任一步失败时本地状态保持不变, 已在远端撤销的 HIT 会在下次同步时对齐为 cancelled
func (m *Manager) CancelBatch(ctx context.Context, batchID string) (*model.BatchModel, error) {
	unlockBatch := m.locks.Lock(batchKey(batchID))
	defer unlockBatch()

	batch, err := m.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", batchID, err)
	}
	switch batch.State {
	case model.BatchStateCancelled:
		return batch, nil
	case model.BatchStateDone:
		return nil, fmt.Errorf("%w: batch %s is done", ErrInvalidTransition, batchID)
	}

	hits, err := m.hits.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load HITs for batch %s: %w", batchID, err)
	}
	keys := make([]string, 0, len(hits))
	for _, hit := range hits {
		keys = append(keys, hitKey(hit.ID))
	}
	unlockHITs := m.locks.LockAll(keys)
	defer unlockHITs()

	var targets []*model.HITModel
	for _, hit := range hits {
		fresh, err := m.hits.FindByID(ctx, hit.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get HIT %s: %w", hit.ID, err)
		}
		switch fresh.State {
		case model.HITStatePendingAnnotation:
			targets = append(targets, fresh)
		case model.HITStatePendingAggregation:
			// 聚合中的 HIT 无法取消, 整个批次保持不变
			return nil, fmt.Errorf("%w: HIT %s in batch %s is %s", ErrInvalidTransition, fresh.ID, batchID, fresh.State)
		}
	}

	log := m.logger.WithField("batch_id", batchID)
	for _, hit := range targets {
		if err := marketplace.CheckRevocable(ctx, m.client, hit.ID); err != nil {
			log.WithError(err).WithField("hit_id", hit.ID).Warn("batch cancel aborted before revoking")
			return nil, err
		}
	}
	for _, hit := range targets {
		if _, err := marketplace.Revoke(ctx, m.client, hit.ID); err != nil {
			log.WithError(err).WithField("hit_id", hit.ID).Error("batch cancel aborted while revoking")
			return nil, err
		}
	}

	nextHITs := make([]model.HITModel, len(targets))
	nextBatch := *batch
	err = m.inTx(ctx, func(r txRepos) error {
		for i, hit := range targets {
			nextHITs[i] = *hit
			if err := r.hits.UpdateState(ctx, &nextHITs[i], model.HITStateCancelled); err != nil {
				return err
			}
			if err := r.history.Record(ctx, model.EntityHIT, hit.ID, string(hit.State), string(model.HITStateCancelled), "batch cancelled"); err != nil {
				return err
			}
		}
		if err := r.batches.UpdateState(ctx, &nextBatch, model.BatchStateCancelled); err != nil {
			return err
		}
		return r.history.Record(ctx, model.EntityBatch, batch.ID, string(batch.State), string(model.BatchStateCancelled), "cancelled")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel batch %s: %w", batchID, err)
	}

	for _, hit := range targets {
		metrics.RecordTransition(model.EntityHIT, string(hit.State), string(model.HITStateCancelled))
		m.publish(Event{Entity: model.EntityHIT, ID: hit.ID, BatchID: batchID, From: string(hit.State), To: string(model.HITStateCancelled), Reason: "batch cancelled"})
	}
	metrics.RecordTransition(model.EntityBatch, string(batch.State), string(model.BatchStateCancelled))
	m.publish(Event{Entity: model.EntityBatch, ID: batchID, BatchID: batchID, From: string(batch.State), To: string(model.BatchStateCancelled), Reason: "cancelled"})
	log.WithField("hits", len(targets)).Info("batch cancelled")
	return &nextBatch, nil
}

// advanceBatch 在一个事务内提交批次状态和历史记录
func (m *Manager) advanceBatch(ctx context.Context, batch *model.BatchModel, to model.BatchState, reason string) error {
	if batch.State == to {
		return nil
	}
	if !batch.State.CanAdvanceTo(to) {
		return fmt.Errorf("%w: batch %s %s -> %s", ErrInvalidTransition, batch.ID, batch.State, to)
	}

	next := *batch
	err := m.inTx(ctx, func(r txRepos) error {
		if err := r.batches.UpdateState(ctx, &next, to); err != nil {
			return err
		}
		return r.history.Record(ctx, model.EntityBatch, batch.ID, string(batch.State), string(to), reason)
	})
	if err != nil {
		return fmt.Errorf("failed to move batch %s to %s: %w", batch.ID, to, err)
	}

	metrics.RecordTransition(model.EntityBatch, string(batch.State), string(to))
	m.publish(Event{Entity: model.EntityBatch, ID: batch.ID, BatchID: batch.ID, From: string(batch.State), To: string(to), Reason: reason})
	m.logger.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"from":     batch.State,
		"to":       to,
		"reason":   reason,
	}).Info("batch state changed")
	*batch = next
	return nil
}
