package marketplace

import (
	"context"
	"fmt"
	"time"
)

// RenewPeriod 追加作业后 HIT 续期的时长
const RenewPeriod = 24 * time.Hour

// Revoke 撤销 HIT: 先使其过期, 再尝试删除
// HIT 已处置时返回 false; 仍有待审核作业时返回 ErrHITMustBeReviewed
func Revoke(ctx context.Context, c Client, hitID string) (bool, error) {
	hit, err := c.GetHIT(ctx, hitID)
	if err != nil {
		return false, fmt.Errorf("failed to get HIT %s: %w", hitID, err)
	}
	if hit.Status == HITStatusDisposed {
		return false, nil
	}

	if err := c.ExpireHIT(ctx, hitID, time.Now()); err != nil {
		return false, fmt.Errorf("failed to expire HIT %s: %w", hitID, err)
	}

	hit, err = c.GetHIT(ctx, hitID)
	if err != nil {
		return false, fmt.Errorf("failed to get HIT %s: %w", hitID, err)
	}
	if hit.Status != HITStatusReviewable && hit.Status != HITStatusUnassignable {
		return false, fmt.Errorf("%w: HIT %s has status %s after expiry", ErrInvalidStatus, hitID, hit.Status)
	}

	inFlight, err := hit.InFlight()
	if err != nil {
		return false, err
	}
	if inFlight > 0 {
		return false, fmt.Errorf("%w: HIT %s has %d assignments awaiting review", ErrHITMustBeReviewed, hitID, inFlight)
	}

	if err := c.DeleteHIT(ctx, hitID); err != nil {
		return false, fmt.Errorf("failed to delete HIT %s: %w", hitID, err)
	}
	return true, nil
}

// CheckRevocable 不修改远端, 只检查 HIT 当前是否可以安全撤销
func CheckRevocable(ctx context.Context, c Client, hitID string) error {
	hit, err := c.GetHIT(ctx, hitID)
	if err != nil {
		return fmt.Errorf("failed to get HIT %s: %w", hitID, err)
	}
	if hit.Status == HITStatusDisposed {
		return nil
	}
	inFlight, err := hit.InFlight()
	if err != nil {
		return err
	}
	if inFlight > 0 {
		return fmt.Errorf("%w: HIT %s has %d assignments awaiting review", ErrHITMustBeReviewed, hitID, inFlight)
	}
	return nil
}

// Approve 批准作业, 已批准时返回 false
func Approve(ctx context.Context, c Client, assignmentID string) (bool, error) {
	assignment, err := c.GetAssignment(ctx, assignmentID)
	if err != nil {
		return false, fmt.Errorf("failed to get assignment %s: %w", assignmentID, err)
	}
	switch assignment.Status {
	case AssignmentStatusApproved:
		return false, nil
	case AssignmentStatusRejected:
		return false, fmt.Errorf("%w: assignment %s has already been rejected", ErrInvalidStatus, assignmentID)
	case AssignmentStatusSubmitted:
	default:
		return false, fmt.Errorf("%w: assignment %s should have status %s, but has status %s",
			ErrInvalidStatus, assignmentID, AssignmentStatusSubmitted, assignment.Status)
	}

	if err := c.ApproveAssignment(ctx, assignmentID, ""); err != nil {
		return false, fmt.Errorf("failed to approve assignment %s: %w", assignmentID, err)
	}
	return true, nil
}

// Reject 拒绝作业, 已拒绝时返回 false
func Reject(ctx context.Context, c Client, assignmentID, message string) (bool, error) {
	assignment, err := c.GetAssignment(ctx, assignmentID)
	if err != nil {
		return false, fmt.Errorf("failed to get assignment %s: %w", assignmentID, err)
	}
	switch assignment.Status {
	case AssignmentStatusRejected:
		return false, nil
	case AssignmentStatusApproved:
		return false, fmt.Errorf("%w: assignment %s has already been approved", ErrInvalidStatus, assignmentID)
	case AssignmentStatusSubmitted:
	default:
		return false, fmt.Errorf("%w: assignment %s should have status %s, but has status %s",
			ErrInvalidStatus, assignmentID, AssignmentStatusSubmitted, assignment.Status)
	}

	if err := c.RejectAssignment(ctx, assignmentID, message); err != nil {
		return false, fmt.Errorf("failed to reject assignment %s: %w", assignmentID, err)
	}
	return true, nil
}
