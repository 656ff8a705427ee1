package lifecycle_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/database"
	"github.com/mautops/turk-gin/internal/lifecycle"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingTask 记录回调次数的任务定义
type recordingTask struct {
	tasks.Base

	mu             sync.Mutex
	received       []string
	hitComplete    []int
	batchComplete  int
	notReady       bool
	maxAssignments int
}

func (r *recordingTask) Name() string { return "recording" }

func (r *recordingTask) Version() int { return 2 }

func (r *recordingTask) Params(input json.RawMessage) (marketplace.CreateHITParams, error) {
	return marketplace.CreateHITParams{
		Title:                       "Recording task",
		Description:                 "Used by lifecycle tests",
		MaxAssignments:              r.maxAssignments,
		Reward:                      "0.01",
		AssignmentDurationInSeconds: 300,
		LifetimeInSeconds:           3600,
	}, nil
}

func (r *recordingTask) OnAssignmentReceived(ctx context.Context, assignment *model.AssignmentModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, assignment.ID)
	return nil
}

func (r *recordingTask) OnHITComplete(ctx context.Context, hit *model.HITModel, assignments []*model.AssignmentModel) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hitComplete = append(r.hitComplete, len(assignments))
	return !r.notReady, nil
}

func (r *recordingTask) OnBatchComplete(ctx context.Context, batch *model.BatchModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchComplete++
	return nil
}

func (r *recordingTask) counts() (received, hitComplete, batchComplete int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received), len(r.hitComplete), r.batchComplete
}

// recordingNotifier 收集状态变更事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []lifecycle.Event
}

func (n *recordingNotifier) Publish(event lifecycle.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) snapshot() []lifecycle.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]lifecycle.Event(nil), n.events...)
}

type harness struct {
	db       *gorm.DB
	client   marketplace.Client
	sandbox  *marketplace.MemoryClient
	task     *recordingTask
	notifier *recordingNotifier
	manager  *lifecycle.Manager
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// newHarness 使用进程内市场创建管理器, client 为空时直接使用沙箱
func newHarness(t *testing.T, client marketplace.Client, sandbox *marketplace.MemoryClient) *harness {
	t.Helper()
	if sandbox == nil {
		sandbox = marketplace.NewMemoryClient()
	}
	if client == nil {
		client = sandbox
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	task := &recordingTask{Base: tasks.Base{Logger: logger}, maxAssignments: 3}
	registry, err := tasks.NewRegistry(task)
	require.NoError(t, err)

	db := setupTestDB(t)
	notifier := &recordingNotifier{}
	manager := lifecycle.NewManager(db, client, registry, lifecycle.Options{Notifier: notifier}, logger)
	require.NoError(t, manager.RegisterTasks(context.Background()))

	return &harness{
		db:       db,
		client:   client,
		sandbox:  sandbox,
		task:     task,
		notifier: notifier,
		manager:  manager,
	}
}

// createBatch 创建批次并返回批次和其下的 HIT ID
func (h *harness) createBatch(t *testing.T, n int) (*model.BatchModel, []string) {
	t.Helper()
	inputs := make([]json.RawMessage, n)
	for i := range inputs {
		inputs[i] = json.RawMessage(`{"image": "https://img.example.com/` + string(rune('a'+i)) + `.png"}`)
	}
	batch, err := h.manager.CreateBatch(context.Background(), "recording", inputs)
	require.NoError(t, err)

	hits, err := h.manager.ListHITs(context.Background(), batch.ID)
	require.NoError(t, err)
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	return batch, ids
}

func (h *harness) submit(t *testing.T, hitID, workerID string) string {
	t.Helper()
	id, err := h.sandbox.Submit(hitID, workerID, map[string]string{"output": `{"label": "cat"}`})
	require.NoError(t, err)
	return id
}

func (h *harness) hitState(t *testing.T, hitID string) model.HITState {
	t.Helper()
	hit, err := h.manager.GetHIT(context.Background(), hitID)
	require.NoError(t, err)
	return hit.State
}

func (h *harness) batchState(t *testing.T, batchID string) model.BatchState {
	t.Helper()
	batch, err := h.manager.GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	return batch.State
}
