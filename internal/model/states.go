package model

// BatchState 批次状态
type BatchState string

const (
	BatchStateUploading          BatchState = "uploading"
	BatchStatePendingAnnotation  BatchState = "pending_annotation"
	BatchStatePendingAggregation BatchState = "pending_aggregation"
	BatchStateDone               BatchState = "done"
	BatchStateCancelled          BatchState = "cancelled"
)

// HITState HIT 状态
// 只允许 pending_annotation -> pending_aggregation -> done,
// 或 pending_annotation -> cancelled
type HITState string

const (
	HITStatePendingAnnotation  HITState = "pending_annotation"
	HITStatePendingAggregation HITState = "pending_aggregation"
	HITStateDone               HITState = "done"
	HITStateCancelled          HITState = "cancelled"
)

// AssignmentState 作业状态
type AssignmentState string

const (
	AssignmentStatePendingVerification AssignmentState = "pending_verification"
	AssignmentStateAccepted            AssignmentState = "accepted"
	AssignmentStateRejected            AssignmentState = "rejected"
)

// IsTerminal 判断 HIT 状态是否为终态
func (s HITState) IsTerminal() bool {
	return s == HITStateDone || s == HITStateCancelled
}

// CanAdvanceTo 判断是否允许从当前状态前进到目标状态
func (s HITState) CanAdvanceTo(to HITState) bool {
	switch s {
	case HITStatePendingAnnotation:
		return to == HITStatePendingAggregation || to == HITStateCancelled
	case HITStatePendingAggregation:
		return to == HITStateDone
	default:
		return false
	}
}

// Valid 判断 HIT 状态是否合法
func (s HITState) Valid() bool {
	switch s {
	case HITStatePendingAnnotation, HITStatePendingAggregation, HITStateDone, HITStateCancelled:
		return true
	}
	return false
}

// IsTerminal 判断批次状态是否为终态
func (s BatchState) IsTerminal() bool {
	return s == BatchStateDone || s == BatchStateCancelled
}

// CanAdvanceTo 判断批次是否允许前进到目标状态
func (s BatchState) CanAdvanceTo(to BatchState) bool {
	switch s {
	case BatchStateUploading:
		return to == BatchStatePendingAnnotation || to == BatchStateCancelled
	case BatchStatePendingAnnotation:
		return to == BatchStatePendingAggregation || to == BatchStateDone || to == BatchStateCancelled
	case BatchStatePendingAggregation:
		return to == BatchStateDone || to == BatchStateCancelled
	default:
		return false
	}
}

// IsTerminal 判断作业状态是否为终态
func (s AssignmentState) IsTerminal() bool {
	return s == AssignmentStateAccepted || s == AssignmentStateRejected
}

// Valid 判断批次状态是否合法
func (s BatchState) Valid() bool {
	switch s {
	case BatchStateUploading, BatchStatePendingAnnotation, BatchStatePendingAggregation, BatchStateDone, BatchStateCancelled:
		return true
	}
	return false
}
