package metrics

import (
	"context"
	"time"

	"github.com/mautops/turk-gin/internal/model"
	"gorm.io/gorm"
)

// HITStateCounter 按状态统计 HIT
type HITStateCounter interface {
	CountByState(ctx context.Context) (map[model.HITState]int64, error)
}

// Collector 指标收集器
type Collector struct {
	db       *gorm.DB
	hits     HITStateCounter
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, hits HITStateCounter, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		hits:     hits,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = UpdateDatabaseConnections(c.db)
			_ = c.CollectHITStates(c.ctx)
		}
	}
}

// CollectHITStates 刷新 HIT 状态分布
func (c *Collector) CollectHITStates(ctx context.Context) error {
	counts, err := c.hits.CountByState(ctx)
	if err != nil {
		return err
	}
	for _, state := range []model.HITState{
		model.HITStatePendingAnnotation,
		model.HITStatePendingAggregation,
		model.HITStateDone,
		model.HITStateCancelled,
	} {
		UpdateHITsByState(string(state), float64(counts[state]))
	}
	return nil
}
