package repository

import (
	"context"
	"time"

	"github.com/mautops/turk-gin/internal/model"
	"gorm.io/gorm"
)

// HITRepository HIT 仓储接口
type HITRepository interface {
	Create(ctx context.Context, hit *model.HITModel) error
	FindByID(ctx context.Context, id string) (*model.HITModel, error)
	FindByBatchID(ctx context.Context, batchID string) ([]*model.HITModel, error)
	CountByState(ctx context.Context) (map[model.HITState]int64, error)
	// UpdateState 更新状态, 同时刷新 last_synced_at
	UpdateState(ctx context.Context, hit *model.HITModel, state model.HITState) error
	// UpdateExpectedCount 更新期望作业数
	UpdateExpectedCount(ctx context.Context, hit *model.HITModel, count int) error
	// UpdateOutput 写入聚合结果
	UpdateOutput(ctx context.Context, hit *model.HITModel, output []byte) error
	// Touch 仅刷新 last_synced_at
	Touch(ctx context.Context, hit *model.HITModel) error
	WithTx(tx *gorm.DB) HITRepository
}

// hitRepository HIT 仓储实现
type hitRepository struct {
	db *gorm.DB
}

// NewHITRepository 创建 HIT 仓储
func NewHITRepository(db *gorm.DB) HITRepository {
	return &hitRepository{db: db}
}

func (r *hitRepository) WithTx(tx *gorm.DB) HITRepository {
	return &hitRepository{db: tx}
}

// Create 保存新 HIT
func (r *hitRepository) Create(ctx context.Context, hit *model.HITModel) error {
	if err := hit.Validate(); err != nil {
		return err
	}
	if hit.Version == 0 {
		hit.Version = 1
	}
	return r.db.WithContext(ctx).Create(hit).Error
}

// FindByID 根据 ID 查找 HIT
func (r *hitRepository) FindByID(ctx context.Context, id string) (*model.HITModel, error) {
	var hit model.HITModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&hit).Error; err != nil {
		return nil, translate(err)
	}
	return &hit, nil
}

// FindByBatchID 查找批次下的所有 HIT
func (r *hitRepository) FindByBatchID(ctx context.Context, batchID string) ([]*model.HITModel, error) {
	var hits []*model.HITModel
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("created_at ASC, id ASC").Find(&hits).Error
	return hits, err
}

// CountByState 按状态统计 HIT 数量
func (r *hitRepository) CountByState(ctx context.Context) (map[model.HITState]int64, error) {
	var rows []struct {
		State model.HITState
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&model.HITModel{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.HITState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

func (r *hitRepository) UpdateState(ctx context.Context, hit *model.HITModel, state model.HITState) error {
	now := time.Now()
	if err := updateVersioned(ctx, r.db, &model.HITModel{}, hit.ID, hit.Version, map[string]interface{}{
		"state":          state,
		"last_synced_at": now,
	}); err != nil {
		return err
	}
	hit.State = state
	hit.Version++
	hit.LastSyncedAt = &now
	return nil
}

func (r *hitRepository) UpdateExpectedCount(ctx context.Context, hit *model.HITModel, count int) error {
	if err := updateVersioned(ctx, r.db, &model.HITModel{}, hit.ID, hit.Version, map[string]interface{}{
		"expected_assignment_count": count,
	}); err != nil {
		return err
	}
	hit.ExpectedAssignmentCount = count
	hit.Version++
	return nil
}

func (r *hitRepository) UpdateOutput(ctx context.Context, hit *model.HITModel, output []byte) error {
	if err := updateVersioned(ctx, r.db, &model.HITModel{}, hit.ID, hit.Version, map[string]interface{}{
		"output_data": output,
	}); err != nil {
		return err
	}
	hit.OutputData = output
	hit.Version++
	return nil
}

func (r *hitRepository) Touch(ctx context.Context, hit *model.HITModel) error {
	now := time.Now()
	if err := updateVersioned(ctx, r.db, &model.HITModel{}, hit.ID, hit.Version, map[string]interface{}{
		"last_synced_at": now,
	}); err != nil {
		return err
	}
	hit.Version++
	hit.LastSyncedAt = &now
	return nil
}
