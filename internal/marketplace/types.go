package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// HITStatus 远端 HIT 状态
type HITStatus string

const (
	HITStatusAssignable   HITStatus = "Assignable"
	HITStatusUnassignable HITStatus = "Unassignable"
	HITStatusReviewable   HITStatus = "Reviewable"
	HITStatusReviewing    HITStatus = "Reviewing"
	HITStatusDisposed     HITStatus = "Disposed"
)

// AssignmentStatus 远端作业状态
type AssignmentStatus string

const (
	AssignmentStatusSubmitted AssignmentStatus = "Submitted"
	AssignmentStatusApproved  AssignmentStatus = "Approved"
	AssignmentStatusRejected  AssignmentStatus = "Rejected"
)

// DefaultAnswerField 工作者表单中承载 JSON 答案的字段名
const DefaultAnswerField = "output"

// QualificationRequirement 工作者资格要求
type QualificationRequirement struct {
	QualificationTypeID string   `json:"qualification_type_id"`
	Comparator          string   `json:"comparator"`
	IntegerValues       []int32  `json:"integer_values,omitempty"`
	Countries           []string `json:"countries,omitempty"`
	ActionsGuarded      string   `json:"actions_guarded,omitempty"`
}

// CreateHITParams 创建 HIT 的参数
type CreateHITParams struct {
	Title                       string                     `json:"title"`
	Description                 string                     `json:"description"`
	Keywords                    string                     `json:"keywords,omitempty"`
	FrameHeight                 int                        `json:"frame_height,omitempty"`
	AssignmentDurationInSeconds int64                      `json:"assignment_duration_in_seconds"`
	LifetimeInSeconds           int64                      `json:"lifetime_in_seconds"`
	MaxAssignments              int                        `json:"max_assignments"`
	Reward                      string                     `json:"reward"`
	QualificationRequirements   []QualificationRequirement `json:"qualification_requirements,omitempty"`
}

// DefaultFrameHeight 未指定时 ExternalQuestion 的 iframe 高度
const DefaultFrameHeight = 800

// Validate 检查必填参数
func (p *CreateHITParams) Validate() error {
	switch {
	case p.Title == "":
		return fmt.Errorf("%w: Title", ErrMissingParam)
	case p.Description == "":
		return fmt.Errorf("%w: Description", ErrMissingParam)
	case p.MaxAssignments <= 0:
		return fmt.Errorf("%w: MaxAssignments", ErrMissingParam)
	case p.Reward == "":
		return fmt.Errorf("%w: Reward", ErrMissingParam)
	case p.AssignmentDurationInSeconds <= 0:
		return fmt.Errorf("%w: AssignmentDurationInSeconds", ErrMissingParam)
	case p.LifetimeInSeconds <= 0:
		return fmt.Errorf("%w: LifetimeInSeconds", ErrMissingParam)
	}
	return nil
}

// CreatedHIT 新建 HIT 的远端标识
type CreatedHIT struct {
	HITID     string
	HITTypeID string
}

// HIT 远端 HIT 快照
type HIT struct {
	ID              string
	TypeID          string
	Status          HITStatus
	MaxAssignments  int
	NumberAvailable int
	NumberCompleted int
	NumberPending   int
	Expiration      time.Time
}

// InFlight 返回已提交但尚未审核的作业数
// 四个计数之和超过 MaxAssignments 时视为数据不一致
func (h *HIT) InFlight() (int, error) {
	accounted := h.NumberAvailable + h.NumberCompleted + h.NumberPending
	if h.NumberAvailable < 0 || h.NumberCompleted < 0 || h.NumberPending < 0 || accounted > h.MaxAssignments {
		return 0, fmt.Errorf("%w: HIT %s max=%d available=%d completed=%d pending=%d",
			ErrInconsistentCounters, h.ID, h.MaxAssignments, h.NumberAvailable, h.NumberCompleted, h.NumberPending)
	}
	return h.MaxAssignments - accounted, nil
}

// Assignment 远端作业快照
type Assignment struct {
	ID        string
	HITID     string
	WorkerID  string
	Status    AssignmentStatus
	RawAnswer string
}

// Output 从原始答案中提取指定字段并校验为 JSON
func (a *Assignment) Output(field string) (json.RawMessage, error) {
	out, err := ParseOutput(a.RawAnswer, field)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: %w", a.ID, err)
	}
	return out, nil
}

// Client 众包市场客户端
// 生命周期由进程持有, 通过注入传给各管理器
type Client interface {
	CreateHIT(ctx context.Context, params CreateHITParams) (*CreatedHIT, error)
	GetHIT(ctx context.Context, hitID string) (*HIT, error)
	GetAssignment(ctx context.Context, assignmentID string) (*Assignment, error)
	ListAssignmentsForHIT(ctx context.Context, hitID string) ([]*Assignment, error)
	ExpireHIT(ctx context.Context, hitID string, at time.Time) error
	DeleteHIT(ctx context.Context, hitID string) error
	RenewHIT(ctx context.Context, hitID string, expiry time.Time) error
	// CreateAdditionalAssignments token 相同的重复请求只生效一次
	CreateAdditionalAssignments(ctx context.Context, hitID string, count int, token string) error
	ApproveAssignment(ctx context.Context, assignmentID string, feedback string) error
	RejectAssignment(ctx context.Context, assignmentID string, message string) error
}
