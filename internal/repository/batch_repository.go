package repository

import (
	"context"
	"time"

	"github.com/mautops/turk-gin/internal/model"
	"gorm.io/gorm"
)

// BatchRepository 批次仓储接口
type BatchRepository interface {
	Create(ctx context.Context, batch *model.BatchModel) error
	FindByID(ctx context.Context, id string) (*model.BatchModel, error)
	FindByStates(ctx context.Context, states ...model.BatchState) ([]*model.BatchModel, error)
	UpdateState(ctx context.Context, batch *model.BatchModel, state model.BatchState) error
	Touch(ctx context.Context, batch *model.BatchModel) error
	WithTx(tx *gorm.DB) BatchRepository
}

// batchRepository 批次仓储实现
type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository 创建批次仓储
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) WithTx(tx *gorm.DB) BatchRepository {
	return &batchRepository{db: tx}
}

// Create 保存新批次
func (r *batchRepository) Create(ctx context.Context, batch *model.BatchModel) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if batch.Version == 0 {
		batch.Version = 1
	}
	return r.db.WithContext(ctx).Create(batch).Error
}

// FindByID 根据 ID 查找批次
func (r *batchRepository) FindByID(ctx context.Context, id string) (*model.BatchModel, error) {
	var batch model.BatchModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

// FindByStates 查找处于指定状态的批次, 不传状态时返回全部
func (r *batchRepository) FindByStates(ctx context.Context, states ...model.BatchState) ([]*model.BatchModel, error) {
	var batches []*model.BatchModel
	query := r.db.WithContext(ctx).Model(&model.BatchModel{})
	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	}
	err := query.Order("created_at DESC").Find(&batches).Error
	return batches, err
}

func (r *batchRepository) UpdateState(ctx context.Context, batch *model.BatchModel, state model.BatchState) error {
	now := time.Now()
	if err := updateVersioned(ctx, r.db, &model.BatchModel{}, batch.ID, batch.Version, map[string]interface{}{
		"state":          state,
		"last_synced_at": now,
	}); err != nil {
		return err
	}
	batch.State = state
	batch.Version++
	batch.LastSyncedAt = &now
	return nil
}

func (r *batchRepository) Touch(ctx context.Context, batch *model.BatchModel) error {
	now := time.Now()
	if err := updateVersioned(ctx, r.db, &model.BatchModel{}, batch.ID, batch.Version, map[string]interface{}{
		"last_synced_at": now,
	}); err != nil {
		return err
	}
	batch.Version++
	batch.LastSyncedAt = &now
	return nil
}
