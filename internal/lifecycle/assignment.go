package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/metrics"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// newAssignment 从远端作业构造本地记录, 答案中缺少输出字段时返回错误
func (m *Manager) newAssignment(hitID string, remote *marketplace.Assignment) (*model.AssignmentModel, error) {
	output, err := remote.Output(m.answerField)
	if err != nil {
		return nil, err
	}

	state := model.AssignmentStatePendingVerification
	switch remote.Status {
	case marketplace.AssignmentStatusApproved:
		state = model.AssignmentStateAccepted
	case marketplace.AssignmentStatusRejected:
		state = model.AssignmentStateRejected
	}

	return &model.AssignmentModel{
		ID:         remote.ID,
		HITID:      hitID,
		WorkerID:   remote.WorkerID,
		OutputData: output,
		State:      state,
		Version:    1,
		CreatedAt:  time.Now(),
	}, nil
}

// assignmentStateFor 远端作业状态到本地状态的映射
func assignmentStateFor(status marketplace.AssignmentStatus) (model.AssignmentState, bool) {
	switch status {
	case marketplace.AssignmentStatusSubmitted:
		return model.AssignmentStatePendingVerification, true
	case marketplace.AssignmentStatusApproved:
		return model.AssignmentStateAccepted, true
	case marketplace.AssignmentStatusRejected:
		return model.AssignmentStateRejected, true
	}
	return "", false
}

// reconcileAssignment 按远端状态更新本地作业
// 无法识别的状态在宽松模式下忽略, 严格模式下返回 ErrUnknownStatus
func (m *Manager) reconcileAssignment(ctx context.Context, assignment *model.AssignmentModel, status marketplace.AssignmentStatus) error {
	state, ok := assignmentStateFor(status)
	if !ok {
		if m.strict.Load() {
			return fmt.Errorf("%w: assignment %s reported %q", ErrUnknownStatus, assignment.ID, status)
		}
		m.logger.WithFields(logrus.Fields{
			"assignment_id": assignment.ID,
			"status":        status,
		}).Debug("ignoring unrecognized assignment status")
		return nil
	}
	return m.setAssignmentState(ctx, assignment, state, "remote status "+string(status))
}

// setAssignmentState 作业状态唯一的写入口, 状态相同时不写库
// 已审核的作业不会回到待验证
func (m *Manager) setAssignmentState(ctx context.Context, assignment *model.AssignmentModel, to model.AssignmentState, reason string) error {
	if assignment.State == to {
		return nil
	}
	if assignment.State.IsTerminal() && to == model.AssignmentStatePendingVerification {
		m.logger.WithFields(logrus.Fields{
			"assignment_id": assignment.ID,
			"state":         assignment.State,
		}).Warn("remote reports a reviewed assignment as submitted, keeping local state")
		return nil
	}

	next := *assignment
	err := m.inTx(ctx, func(r txRepos) error {
		if err := r.assignments.UpdateState(ctx, &next, to); err != nil {
			return err
		}
		return r.history.Record(ctx, model.EntityAssignment, assignment.ID, string(assignment.State), string(to), reason)
	})
	if err != nil {
		return fmt.Errorf("failed to move assignment %s to %s: %w", assignment.ID, to, err)
	}

	metrics.RecordTransition(model.EntityAssignment, string(assignment.State), string(to))
	m.publish(Event{
		Entity:  model.EntityAssignment,
		ID:      assignment.ID,
		BatchID: m.batchOfHIT(ctx, assignment.HITID),
		From:    string(assignment.State),
		To:      string(to),
		Reason:  reason,
	})
	m.logger.WithFields(logrus.Fields{
		"assignment_id": assignment.ID,
		"hit_id":        assignment.HITID,
		"from":          assignment.State,
		"to":            to,
	}).Info("assignment state changed")
	*assignment = next
	return nil
}

// SyncAssignment 重新拉取单个作业的远端状态
func (m *Manager) SyncAssignment(ctx context.Context, assignmentID string) (*model.AssignmentModel, error) {
	assignment, unlock, err := m.lockAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	remote, err := m.client.GetAssignment(ctx, assignmentID)
	if err != nil {
		metrics.RecordSync(model.EntityAssignment, err)
		return nil, fmt.Errorf("failed to get remote assignment %s: %w", assignmentID, err)
	}
	err = m.reconcileAssignment(ctx, assignment, remote.Status)
	metrics.RecordSync(model.EntityAssignment, err)
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// ApproveAssignment 在市场批准作业并记为 accepted
func (m *Manager) ApproveAssignment(ctx context.Context, assignmentID string) (*model.AssignmentModel, error) {
	assignment, unlock, err := m.lockAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := marketplace.Approve(ctx, m.client, assignmentID); err != nil {
		return nil, err
	}
	if err := m.setAssignmentState(ctx, assignment, model.AssignmentStateAccepted, "approved"); err != nil {
		return nil, err
	}
	return assignment, nil
}

// RejectAssignment 在市场拒绝作业并记为 rejected
func (m *Manager) RejectAssignment(ctx context.Context, assignmentID, message string) (*model.AssignmentModel, error) {
	assignment, unlock, err := m.lockAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := marketplace.Reject(ctx, m.client, assignmentID, message); err != nil {
		return nil, err
	}
	if err := m.setAssignmentState(ctx, assignment, model.AssignmentStateRejected, "rejected"); err != nil {
		return nil, err
	}
	return assignment, nil
}

// lockAssignment 获取作业所属 HIT 的锁, 并在锁内重新读取作业
func (m *Manager) lockAssignment(ctx context.Context, assignmentID string) (*model.AssignmentModel, func(), error) {
	assignment, err := m.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get assignment %s: %w", assignmentID, err)
	}
	unlock := m.locks.Lock(hitKey(assignment.HITID))
	assignment, err = m.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("failed to get assignment %s: %w", assignmentID, err)
	}
	return assignment, unlock, nil
}
