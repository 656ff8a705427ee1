package marketplace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryClient 进程内市场实现
// 用于本地运行和测试, 计数规则与 MTurk 一致:
// available 未被接受, pending 正在作答, completed 已批准或已拒绝,
// 其余为已提交待审核
type MemoryClient struct {
	mu          sync.Mutex
	now         func() time.Time
	hits        map[string]*memoryHIT
	assignments map[string]*Assignment
	tokens      map[string]struct{}
	seq         int
}

type memoryHIT struct {
	hit         HIT
	params      CreateHITParams
	disposed    bool
	forced      HITStatus
	assignments []string
}

// NewMemoryClient 创建进程内市场
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		now:         time.Now,
		hits:        make(map[string]*memoryHIT),
		assignments: make(map[string]*Assignment),
		tokens:      make(map[string]struct{}),
	}
}

func (m *MemoryClient) CreateHIT(ctx context.Context, params CreateHITParams) (*CreatedHIT, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := fmt.Sprintf("HIT%08d", m.seq)
	typeID := "TYPE" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(params.Title+params.Reward)).String()[:8]
	m.hits[id] = &memoryHIT{
		params: params,
		hit: HIT{
			ID:              id,
			TypeID:          typeID,
			MaxAssignments:  params.MaxAssignments,
			NumberAvailable: params.MaxAssignments,
			Expiration:      m.now().Add(time.Duration(params.LifetimeInSeconds) * time.Second),
		},
	}
	m.refresh(m.hits[id])
	return &CreatedHIT{HITID: id, HITTypeID: typeID}, nil
}

func (m *MemoryClient) GetHIT(ctx context.Context, hitID string) (*HIT, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return nil, err
	}
	m.refresh(h)
	snapshot := h.hit
	return &snapshot, nil
}

func (m *MemoryClient) GetAssignment(ctx context.Context, assignmentID string) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[assignmentID]
	if !ok {
		return nil, fmt.Errorf("%w: assignment %s", ErrNotFound, assignmentID)
	}
	snapshot := *a
	return &snapshot, nil
}

func (m *MemoryClient) ListAssignmentsForHIT(ctx context.Context, hitID string) ([]*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return nil, err
	}
	result := make([]*Assignment, 0, len(h.assignments))
	for _, id := range h.assignments {
		snapshot := *m.assignments[id]
		result = append(result, &snapshot)
	}
	return result, nil
}

func (m *MemoryClient) ExpireHIT(ctx context.Context, hitID string, at time.Time) error {
	return m.setExpiration(hitID, at)
}

func (m *MemoryClient) RenewHIT(ctx context.Context, hitID string, expiry time.Time) error {
	return m.setExpiration(hitID, expiry)
}

func (m *MemoryClient) setExpiration(hitID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return err
	}
	if h.disposed {
		return fmt.Errorf("%w: HIT %s is disposed", ErrInvalidStatus, hitID)
	}
	h.hit.Expiration = at
	m.refresh(h)
	return nil
}

func (m *MemoryClient) DeleteHIT(ctx context.Context, hitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return err
	}
	m.refresh(h)
	if h.hit.Status != HITStatusReviewable {
		return fmt.Errorf("%w: HIT %s cannot be deleted in status %s", ErrInvalidStatus, hitID, h.hit.Status)
	}
	inFlight, err := h.hit.InFlight()
	if err != nil {
		return err
	}
	if inFlight > 0 {
		return fmt.Errorf("%w: HIT %s has %d unreviewed assignments", ErrInvalidStatus, hitID, inFlight)
	}
	h.disposed = true
	m.refresh(h)
	return nil
}

func (m *MemoryClient) CreateAdditionalAssignments(ctx context.Context, hitID string, count int, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return err
	}
	if h.disposed {
		return fmt.Errorf("%w: HIT %s is disposed", ErrInvalidStatus, hitID)
	}
	if token != "" {
		if _, seen := m.tokens[token]; seen {
			return nil
		}
		m.tokens[token] = struct{}{}
	}
	h.hit.MaxAssignments += count
	h.hit.NumberAvailable += count
	m.refresh(h)
	return nil
}

func (m *MemoryClient) ApproveAssignment(ctx context.Context, assignmentID string, feedback string) error {
	return m.review(assignmentID, AssignmentStatusApproved)
}

func (m *MemoryClient) RejectAssignment(ctx context.Context, assignmentID string, message string) error {
	return m.review(assignmentID, AssignmentStatusRejected)
}

func (m *MemoryClient) review(assignmentID string, status AssignmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[assignmentID]
	if !ok {
		return fmt.Errorf("%w: assignment %s", ErrNotFound, assignmentID)
	}
	if a.Status != AssignmentStatusSubmitted {
		return fmt.Errorf("%w: assignment %s has status %s", ErrInvalidStatus, assignmentID, a.Status)
	}
	a.Status = status
	h := m.hits[a.HITID]
	h.hit.NumberCompleted++
	m.refresh(h)
	return nil
}

// Accept 模拟工作者接受 HIT, 占用一个可用名额
func (m *MemoryClient) Accept(hitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return err
	}
	m.refresh(h)
	if h.hit.Status != HITStatusAssignable {
		return fmt.Errorf("%w: HIT %s is %s", ErrInvalidStatus, hitID, h.hit.Status)
	}
	h.hit.NumberAvailable--
	h.hit.NumberPending++
	m.refresh(h)
	return nil
}

// Submit 模拟工作者提交表单, 答案按字段名排序编码进信封
// 若没有正在作答的名额则直接占用一个可用名额
func (m *MemoryClient) Submit(hitID, workerID string, fields map[string]string) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	raw, err := EncodeAnswers(keys, fields)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return "", err
	}
	m.refresh(h)
	switch {
	case h.hit.NumberPending > 0:
		h.hit.NumberPending--
	case h.hit.Status == HITStatusAssignable:
		h.hit.NumberAvailable--
	default:
		return "", fmt.Errorf("%w: HIT %s is %s", ErrInvalidStatus, hitID, h.hit.Status)
	}

	m.seq++
	id := fmt.Sprintf("ASSN%08d", m.seq)
	m.assignments[id] = &Assignment{
		ID:        id,
		HITID:     hitID,
		WorkerID:  workerID,
		Status:    AssignmentStatusSubmitted,
		RawAnswer: raw,
	}
	h.assignments = append(h.assignments, id)
	m.refresh(h)
	return id, nil
}

// SetHITStatus 强制覆盖 HIT 状态, 用于模拟远端的异步转换
// 覆盖一直有效, 直到 HIT 被处置
func (m *MemoryClient) SetHITStatus(hitID string, status HITStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return err
	}
	if status == HITStatusDisposed {
		h.disposed = true
	} else {
		h.forced = status
	}
	m.refresh(h)
	return nil
}

// SetCounters 强制覆盖 HIT 的作业计数
func (m *MemoryClient) SetCounters(hitID string, max, available, completed, pending int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return err
	}
	h.hit.MaxAssignments = max
	h.hit.NumberAvailable = available
	h.hit.NumberCompleted = completed
	h.hit.NumberPending = pending
	return nil
}

// SetAssignmentStatus 强制覆盖作业状态
func (m *MemoryClient) SetAssignmentStatus(assignmentID string, status AssignmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[assignmentID]
	if !ok {
		return fmt.Errorf("%w: assignment %s", ErrNotFound, assignmentID)
	}
	a.Status = status
	return nil
}

// Params 返回创建 HIT 时使用的参数
func (m *MemoryClient) Params(hitID string) (CreateHITParams, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(hitID)
	if err != nil {
		return CreateHITParams{}, err
	}
	return h.params, nil
}

func (m *MemoryClient) lookup(hitID string) (*memoryHIT, error) {
	h, ok := m.hits[hitID]
	if !ok {
		return nil, fmt.Errorf("%w: HIT %s", ErrNotFound, hitID)
	}
	return h, nil
}

// refresh 根据计数和过期时间重新推导状态
func (m *MemoryClient) refresh(h *memoryHIT) {
	switch {
	case h.disposed:
		h.hit.Status = HITStatusDisposed
	case h.forced != "":
		h.hit.Status = h.forced
	case h.hit.NumberAvailable > 0 && m.now().Before(h.hit.Expiration):
		h.hit.Status = HITStatusAssignable
	case h.hit.NumberPending > 0:
		h.hit.Status = HITStatusUnassignable
	default:
		h.hit.Status = HITStatusReviewable
	}
}
