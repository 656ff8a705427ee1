package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/turk-gin/internal/model"
	"gorm.io/gorm"
)

// StateHistoryRepository 状态历史仓储接口
type StateHistoryRepository interface {
	// Record 记录一次状态变更
	Record(ctx context.Context, entityType, entityID, from, to, reason string) error
	FindByEntity(ctx context.Context, entityType, entityID string) ([]*model.StateHistoryModel, error)
	WithTx(tx *gorm.DB) StateHistoryRepository
}

// stateHistoryRepository 状态历史仓储实现
type stateHistoryRepository struct {
	db *gorm.DB
}

// NewStateHistoryRepository 创建状态历史仓储
func NewStateHistoryRepository(db *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: db}
}

func (r *stateHistoryRepository) WithTx(tx *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: tx}
}

func (r *stateHistoryRepository) Record(ctx context.Context, entityType, entityID, from, to, reason string) error {
	history := &model.StateHistoryModel{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
		Operator:   "system",
		CreatedAt:  time.Now(),
	}
	if err := history.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(history).Error
}

// FindByEntity 查找实体的状态历史
func (r *stateHistoryRepository) FindByEntity(ctx context.Context, entityType, entityID string) ([]*model.StateHistoryModel, error) {
	var histories []*model.StateHistoryModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&histories).Error
	return histories, err
}
