package model

import (
	"errors"
	"time"
)

// BatchModel 批次数据模型
// 一个批次下的所有 HIT 共享同一个任务定义
type BatchModel struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskName     string     `gorm:"type:varchar(128);not null;index:idx_batches_task" json:"task_name"`
	TaskVersion  int        `gorm:"type:int;not null;index:idx_batches_task" json:"task_version"`
	State        BatchState `gorm:"type:varchar(32);not null;index" json:"state"`
	Version      int        `gorm:"type:int;not null;default:1" json:"version"` // 乐观锁版本号
	CreatedAt    time.Time  `gorm:"not null;index" json:"created_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// TableName 指定表名
func (BatchModel) TableName() string {
	return "batches"
}

// Validate 验证批次模型
func (bm *BatchModel) Validate() error {
	if bm.ID == "" {
		return errors.New("batch ID is required")
	}
	if bm.TaskName == "" {
		return errors.New("task name is required")
	}
	if bm.State == "" {
		return errors.New("batch state is required")
	}
	return nil
}
