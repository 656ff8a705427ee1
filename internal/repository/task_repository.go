package repository

import (
	"context"

	"github.com/mautops/turk-gin/internal/model"
	"gorm.io/gorm"
)

// TaskRepository 任务定义仓储接口
type TaskRepository interface {
	// Ensure 确保 (name, version) 记录存在
	Ensure(ctx context.Context, task *model.TaskModel) error
	FindAll(ctx context.Context) ([]*model.TaskModel, error)
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务定义仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Ensure(ctx context.Context, task *model.TaskModel) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where(model.TaskModel{Name: task.Name, Version: task.Version}).
		FirstOrCreate(task).Error
}

func (r *taskRepository) FindAll(ctx context.Context) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	err := r.db.WithContext(ctx).Order("name ASC, version DESC").Find(&tasks).Error
	return tasks, err
}
