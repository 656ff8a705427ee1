package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/metrics"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/sirupsen/logrus"
)

// SyncHIT 同步单个 HIT: 先摄取新作业, 再对齐远端状态
func (m *Manager) SyncHIT(ctx context.Context, hitID string) error {
	unlock := m.locks.Lock(hitKey(hitID))
	defer unlock()

	hit, err := m.hits.FindByID(ctx, hitID)
	if err != nil {
		return fmt.Errorf("failed to get HIT %s: %w", hitID, err)
	}
	def, err := m.definitionFor(ctx, hit.BatchID)
	if err != nil {
		return err
	}

	err = m.syncHIT(ctx, hit, def)
	metrics.RecordSync(model.EntityHIT, err)
	return err
}

// syncHIT 调用方必须持有该 HIT 的锁
func (m *Manager) syncHIT(ctx context.Context, hit *model.HITModel, def tasks.Definition) error {
	log := m.logger.WithField("hit_id", hit.ID)

	remote, err := m.client.ListAssignmentsForHIT(ctx, hit.ID)
	if err != nil {
		return fmt.Errorf("failed to list assignments for HIT %s: %w", hit.ID, err)
	}

	local, err := m.assignments.FindByHITID(ctx, hit.ID)
	if err != nil {
		return fmt.Errorf("failed to load assignments for HIT %s: %w", hit.ID, err)
	}
	known := make(map[string]*model.AssignmentModel, len(local))
	for _, a := range local {
		known[a.ID] = a
	}

	for _, ra := range remote {
		if existing, ok := known[ra.ID]; ok {
			if err := m.reconcileAssignment(ctx, existing, ra.Status); err != nil {
				return err
			}
			continue
		}

		assignment, err := m.newAssignment(hit.ID, ra)
		if err != nil {
			return err
		}
		if err := m.assignments.Create(ctx, assignment); err != nil {
			return fmt.Errorf("failed to save assignment %s: %w", ra.ID, err)
		}
		known[assignment.ID] = assignment
		local = append(local, assignment)
		metrics.RecordAssignmentIngested()
		log.WithFields(logrus.Fields{
			"assignment_id": assignment.ID,
			"worker_id":     assignment.WorkerID,
		}).Info("assignment ingested")

		if err := def.OnAssignmentReceived(ctx, assignment); err != nil {
			return fmt.Errorf("assignment received callback for %s: %w", assignment.ID, err)
		}
	}

	if hit.State == model.HITStatePendingAnnotation && len(local) >= hit.ExpectedAssignmentCount {
		ready, err := def.OnHITComplete(ctx, hit, local)
		if err != nil {
			return fmt.Errorf("HIT complete callback for %s: %w", hit.ID, err)
		}
		if ready {
			if err := m.advanceHIT(ctx, hit, model.HITStatePendingAggregation, "all assignments received"); err != nil {
				return err
			}
		}
	}

	remoteHIT, err := m.client.GetHIT(ctx, hit.ID)
	if err != nil {
		return fmt.Errorf("failed to get remote HIT %s: %w", hit.ID, err)
	}
	if err := m.reconcileHIT(ctx, hit, remoteHIT.Status); err != nil {
		return err
	}

	return m.hits.Touch(ctx, hit)
}

// reconcileHIT 按远端状态推进本地状态, 只前进不回退
func (m *Manager) reconcileHIT(ctx context.Context, hit *model.HITModel, status marketplace.HITStatus) error {
	reason := "remote status " + string(status)
	switch status {
	case marketplace.HITStatusAssignable:
		// 最早的状态, 前进规则下总是无操作
		return nil
	case marketplace.HITStatusUnassignable:
		// 有工作者正在作答, 信号不明确
		return nil
	case marketplace.HITStatusReviewable, marketplace.HITStatusReviewing:
		if hit.State == model.HITStatePendingAnnotation {
			return m.advanceHIT(ctx, hit, model.HITStatePendingAggregation, reason)
		}
		return nil
	case marketplace.HITStatusDisposed:
		switch hit.State {
		case model.HITStatePendingAnnotation:
			return m.advanceHIT(ctx, hit, model.HITStateCancelled, reason)
		case model.HITStatePendingAggregation:
			return m.advanceHIT(ctx, hit, model.HITStateDone, reason)
		}
		return nil
	default:
		return fmt.Errorf("%w: HIT %s reported %q", ErrUnknownStatus, hit.ID, status)
	}
}

// advanceHIT 在一个事务内提交状态和历史记录
// 状态相同时无操作, 不允许的转换返回 ErrInvalidTransition
func (m *Manager) advanceHIT(ctx context.Context, hit *model.HITModel, to model.HITState, reason string) error {
	if hit.State == to {
		return nil
	}
	if !hit.State.CanAdvanceTo(to) {
		return fmt.Errorf("%w: HIT %s %s -> %s", ErrInvalidTransition, hit.ID, hit.State, to)
	}

	next := *hit
	err := m.inTx(ctx, func(r txRepos) error {
		if err := r.hits.UpdateState(ctx, &next, to); err != nil {
			return err
		}
		return r.history.Record(ctx, model.EntityHIT, hit.ID, string(hit.State), string(to), reason)
	})
	if err != nil {
		return fmt.Errorf("failed to move HIT %s to %s: %w", hit.ID, to, err)
	}

	metrics.RecordTransition(model.EntityHIT, string(hit.State), string(to))
	m.publish(Event{Entity: model.EntityHIT, ID: hit.ID, BatchID: hit.BatchID, From: string(hit.State), To: string(to), Reason: reason})
	m.logger.WithFields(logrus.Fields{
		"hit_id": hit.ID,
		"from":   hit.State,
		"to":     to,
		"reason": reason,
	}).Info("HIT state changed")
	*hit = next
	return nil
}

// ExtendHIT 向市场追加 count 个作业名额
// 只有市场确认后才增加本地期望作业数
func (m *Manager) ExtendHIT(ctx context.Context, hitID string, count int) (*model.HITModel, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: additional assignment count must be positive", marketplace.ErrMissingParam)
	}

	unlock := m.locks.Lock(hitKey(hitID))
	defer unlock()

	hit, err := m.hits.FindByID(ctx, hitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get HIT %s: %w", hitID, err)
	}
	if hit.State.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot extend HIT %s in state %s", ErrInvalidTransition, hitID, hit.State)
	}

	token := uuid.New().String()
	if err := m.client.CreateAdditionalAssignments(ctx, hitID, count, token); err != nil {
		return nil, fmt.Errorf("failed to add assignments to HIT %s: %w", hitID, err)
	}
	if err := m.hits.UpdateExpectedCount(ctx, hit, hit.ExpectedAssignmentCount+count); err != nil {
		return nil, fmt.Errorf("failed to save expected assignment count for HIT %s: %w", hitID, err)
	}
	m.logger.WithFields(logrus.Fields{
		"hit_id":   hitID,
		"count":    count,
		"expected": hit.ExpectedAssignmentCount,
	}).Info("HIT extended")

	if err := m.client.RenewHIT(ctx, hitID, time.Now().Add(marketplace.RenewPeriod)); err != nil {
		return hit, fmt.Errorf("failed to renew HIT %s: %w", hitID, err)
	}
	return hit, nil
}

// CancelHIT 撤销远端 HIT 并把本地状态置为 cancelled
// 远端仍有待审核作业时返回 marketplace.ErrHITMustBeReviewed, 本地状态不变
func (m *Manager) CancelHIT(ctx context.Context, hitID string) (*model.HITModel, error) {
	unlock := m.locks.Lock(hitKey(hitID))
	defer unlock()

	hit, err := m.hits.FindByID(ctx, hitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get HIT %s: %w", hitID, err)
	}
	if hit.State == model.HITStateCancelled {
		return hit, nil
	}
	if hit.State != model.HITStatePendingAnnotation {
		return nil, fmt.Errorf("%w: cannot cancel HIT %s in state %s", ErrInvalidTransition, hitID, hit.State)
	}

	if _, err := marketplace.Revoke(ctx, m.client, hitID); err != nil {
		m.logger.WithError(err).WithField("hit_id", hitID).Error("failed to revoke HIT")
		return nil, err
	}
	if err := m.advanceHIT(ctx, hit, model.HITStateCancelled, "cancelled"); err != nil {
		return nil, err
	}
	return hit, nil
}

// SetHITOutput 写入聚合结果, 只允许在聚合阶段及之后
func (m *Manager) SetHITOutput(ctx context.Context, hitID string, output json.RawMessage) (*model.HITModel, error) {
	if !json.Valid(output) {
		return nil, fmt.Errorf("%w: HIT output is not valid JSON", marketplace.ErrParse)
	}

	unlock := m.locks.Lock(hitKey(hitID))
	defer unlock()

	hit, err := m.hits.FindByID(ctx, hitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get HIT %s: %w", hitID, err)
	}
	if hit.State != model.HITStatePendingAggregation && hit.State != model.HITStateDone {
		return nil, fmt.Errorf("%w: HIT %s in state %s has not been aggregated", ErrInvalidTransition, hitID, hit.State)
	}
	if err := m.hits.UpdateOutput(ctx, hit, output); err != nil {
		return nil, fmt.Errorf("failed to save output for HIT %s: %w", hitID, err)
	}
	return hit, nil
}
