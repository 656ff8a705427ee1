package marketplace

import "errors"

var (
	// ErrMissingParam 创建 HIT 缺少必填参数
	ErrMissingParam = errors.New("missing required HIT parameter")
	// ErrMissingAnswer 作业答案中缺少指定字段
	ErrMissingAnswer = errors.New("answer field missing from assignment")
	// ErrParse 答案信封格式错误
	ErrParse = errors.New("malformed answer payload")
	// ErrInvalidStatus 远端状态不满足操作前置条件
	ErrInvalidStatus = errors.New("invalid remote status")
	// ErrHITMustBeReviewed HIT 仍有待审核的作业, 不能撤销
	ErrHITMustBeReviewed = errors.New("HIT must be reviewed")
	// ErrInconsistentCounters 远端作业计数之和超过 MaxAssignments
	ErrInconsistentCounters = errors.New("inconsistent HIT assignment counters")
	// ErrNotFound 远端对象不存在
	ErrNotFound = errors.New("remote object not found")
)

// RequestError 市场接口调用失败
type RequestError struct {
	Operation string
	Err       error
}

func (e *RequestError) Error() string {
	return "marketplace " + e.Operation + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }
