package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mautops/turk-gin/internal/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BatchSyncer 调度器依赖的批次同步能力
type BatchSyncer interface {
	ListActiveBatches(ctx context.Context) ([]*model.BatchModel, error)
	SyncBatch(ctx context.Context, batchID string) error
}

// SyncScheduleConfig 同步计划配置
type SyncScheduleConfig struct {
	Interval    time.Duration // 两次同步之间的间隔
	Concurrency int           // 同时同步的批次数
}

// SyncScheduler 定期同步所有进行中的批次
type SyncScheduler struct {
	syncer BatchSyncer
	logger logrus.FieldLogger

	mu       sync.Mutex
	config   SyncScheduleConfig
	reset    chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewSyncScheduler 创建同步调度器
func NewSyncScheduler(syncer BatchSyncer, config SyncScheduleConfig, logger logrus.FieldLogger) *SyncScheduler {
	return &SyncScheduler{
		syncer:   syncer,
		logger:   logger,
		config:   normalize(config),
		reset:    make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func normalize(config SyncScheduleConfig) SyncScheduleConfig {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return config
}

// Start 启动调度循环, 立即执行一次
func (s *SyncScheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop(ctx)
}

// Stop 停止调度器并等待当前一轮结束
func (s *SyncScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.started.Load() {
		<-s.done
	}
}

// Config 获取当前配置
func (s *SyncScheduler) Config() SyncScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// UpdateConfig 更新间隔和并发数, 下一轮生效
func (s *SyncScheduler) UpdateConfig(config SyncScheduleConfig) {
	config = normalize(config)
	s.mu.Lock()
	changed := config != s.config
	s.config = config
	s.mu.Unlock()

	if changed {
		s.logger.WithFields(logrus.Fields{
			"interval":    config.Interval,
			"concurrency": config.Concurrency,
		}).Info("sync schedule updated")
		select {
		case s.reset <- struct{}{}:
		default:
		}
	}
}

func (s *SyncScheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.Config().Interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ticker.C:
			s.runLogged(ctx)
		case <-s.reset:
			ticker.Reset(s.Config().Interval)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *SyncScheduler) runLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("failed to list active batches")
	}
}

// RunOnce 同步一轮所有进行中的批次
// 单个批次失败只记录日志, 只有列出批次失败时返回错误
func (s *SyncScheduler) RunOnce(ctx context.Context) error {
	batches, err := s.syncer.ListActiveBatches(ctx)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return nil
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(s.Config().Concurrency)
	for _, batch := range batches {
		id := batch.ID
		g.Go(func() error {
			if err := s.syncer.SyncBatch(ctx, id); err != nil {
				s.logger.WithError(err).WithField("batch_id", id).Warn("batch sync finished with errors")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.WithFields(logrus.Fields{
		"batches":  len(batches),
		"duration": time.Since(start),
	}).Debug("sync round finished")
	return nil
}
