package lifecycle

import (
	"context"
	"time"
)

// Event 一次已提交的状态变更
type Event struct {
	Entity  string    `json:"entity"`
	ID      string    `json:"id"`
	BatchID string    `json:"batch_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier 接收状态变更事件
// Publish 在持有 HIT 锁时调用, 实现不能阻塞
type Notifier interface {
	Publish(event Event)
}

func (m *Manager) publish(event Event) {
	if m.notifier == nil {
		return
	}
	event.At = time.Now()
	m.notifier.Publish(event)
}

// batchOfHIT 查找 HIT 所属批次, 只用于事件路由, 查不到时返回空
func (m *Manager) batchOfHIT(ctx context.Context, hitID string) string {
	if m.notifier == nil {
		return ""
	}
	hit, err := m.hits.FindByID(ctx, hitID)
	if err != nil {
		return ""
	}
	return hit.BatchID
}
