package repository

import (
	"context"
	"time"

	"github.com/mautops/turk-gin/internal/model"
	"gorm.io/gorm"
)

// AssignmentRepository 作业仓储接口
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *model.AssignmentModel) error
	FindByID(ctx context.Context, id string) (*model.AssignmentModel, error)
	FindByHITID(ctx context.Context, hitID string) ([]*model.AssignmentModel, error)
	CountByHITID(ctx context.Context, hitID string) (int64, error)
	UpdateState(ctx context.Context, assignment *model.AssignmentModel, state model.AssignmentState) error
	WithTx(tx *gorm.DB) AssignmentRepository
}

// assignmentRepository 作业仓储实现
type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository 创建作业仓储
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) WithTx(tx *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: tx}
}

// Create 保存新作业
func (r *assignmentRepository) Create(ctx context.Context, assignment *model.AssignmentModel) error {
	if err := assignment.Validate(); err != nil {
		return err
	}
	if assignment.Version == 0 {
		assignment.Version = 1
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

// FindByID 根据 ID 查找作业
func (r *assignmentRepository) FindByID(ctx context.Context, id string) (*model.AssignmentModel, error) {
	var assignment model.AssignmentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&assignment).Error; err != nil {
		return nil, translate(err)
	}
	return &assignment, nil
}

// FindByHITID 查找 HIT 下的所有作业
func (r *assignmentRepository) FindByHITID(ctx context.Context, hitID string) ([]*model.AssignmentModel, error) {
	var assignments []*model.AssignmentModel
	err := r.db.WithContext(ctx).Where("hit_id = ?", hitID).Order("created_at ASC, id ASC").Find(&assignments).Error
	return assignments, err
}

// CountByHITID 统计 HIT 下的作业数
func (r *assignmentRepository) CountByHITID(ctx context.Context, hitID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AssignmentModel{}).Where("hit_id = ?", hitID).Count(&count).Error
	return count, err
}

func (r *assignmentRepository) UpdateState(ctx context.Context, assignment *model.AssignmentModel, state model.AssignmentState) error {
	now := time.Now()
	if err := updateVersioned(ctx, r.db, &model.AssignmentModel{}, assignment.ID, assignment.Version, map[string]interface{}{
		"state":          state,
		"last_synced_at": now,
	}); err != nil {
		return err
	}
	assignment.State = state
	assignment.Version++
	assignment.LastSyncedAt = &now
	return nil
}
