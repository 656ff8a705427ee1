package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/repository"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options 生命周期选项
type Options struct {
	// AnswerField 答案信封中承载 JSON 输出的字段
	AnswerField string
	// StrictAssignmentStatus 为 true 时无法识别的作业状态返回 ErrUnknownStatus,
	// 否则忽略
	StrictAssignmentStatus bool
	// Notifier 可选, 接收每次已提交的状态变更
	Notifier Notifier
}

// Manager 批次/HIT/作业生命周期管理器
// 负责把本地状态与市场状态对齐, 同一 HIT 的同步互斥执行
type Manager struct {
	db          *gorm.DB
	client      marketplace.Client
	registry    *tasks.Registry
	batches     repository.BatchRepository
	hits        repository.HITRepository
	assignments repository.AssignmentRepository
	history     repository.StateHistoryRepository
	taskRecords repository.TaskRepository
	locks       *keyedLocker
	answerField string
	strict      atomic.Bool
	notifier    Notifier
	logger      logrus.FieldLogger
}

// NewManager 创建生命周期管理器
func NewManager(db *gorm.DB, client marketplace.Client, registry *tasks.Registry, opts Options, logger logrus.FieldLogger) *Manager {
	if opts.AnswerField == "" {
		opts.AnswerField = marketplace.DefaultAnswerField
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Manager{
		db:          db,
		client:      client,
		registry:    registry,
		batches:     repository.NewBatchRepository(db),
		hits:        repository.NewHITRepository(db),
		assignments: repository.NewAssignmentRepository(db),
		history:     repository.NewStateHistoryRepository(db),
		taskRecords: repository.NewTaskRepository(db),
		locks:       newKeyedLocker(),
		answerField: opts.AnswerField,
		notifier:    opts.Notifier,
		logger:      logger,
	}
	m.strict.Store(opts.StrictAssignmentStatus)
	return m
}

// SetStrictAssignmentStatus 运行时切换作业状态的严格模式
func (m *Manager) SetStrictAssignmentStatus(strict bool) {
	m.strict.Store(strict)
}

// RegisterTasks 把注册表中的任务定义写入 tasks 表
func (m *Manager) RegisterTasks(ctx context.Context) error {
	for _, def := range m.registry.All() {
		if err := m.taskRecords.Ensure(ctx, &model.TaskModel{Name: def.Name(), Version: def.Version()}); err != nil {
			return fmt.Errorf("failed to register task %s: %w", def.Name(), err)
		}
	}
	return nil
}

// txRepos 绑定到同一事务的仓储
type txRepos struct {
	batches     repository.BatchRepository
	hits        repository.HITRepository
	assignments repository.AssignmentRepository
	history     repository.StateHistoryRepository
}

// inTx 在事务中执行 fn, fn 返回错误时整体回滚
func (m *Manager) inTx(ctx context.Context, fn func(r txRepos) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txRepos{
			batches:     m.batches.WithTx(tx),
			hits:        m.hits.WithTx(tx),
			assignments: m.assignments.WithTx(tx),
			history:     m.history.WithTx(tx),
		})
	})
}

// definitionFor 查找批次使用的任务定义
func (m *Manager) definitionFor(ctx context.Context, batchID string) (tasks.Definition, error) {
	batch, err := m.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", batchID, err)
	}
	return m.definitionForBatch(batch)
}

func (m *Manager) definitionForBatch(batch *model.BatchModel) (tasks.Definition, error) {
	def, err := m.registry.Lookup(batch.TaskName)
	if err != nil {
		return nil, err
	}
	if def.Version() != batch.TaskVersion {
		m.logger.WithFields(logrus.Fields{
			"batch_id":       batch.ID,
			"task":           batch.TaskName,
			"batch_version":  batch.TaskVersion,
			"loaded_version": def.Version(),
		}).Warn("batch was created with a different task version")
	}
	return def, nil
}
