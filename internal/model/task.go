package model

import (
	"errors"
	"time"
)

// TaskModel 任务定义记录
// 以 (name, version) 唯一标识, 版本化后不可变
type TaskModel struct {
	Name      string    `gorm:"primaryKey;type:varchar(128)" json:"name"`
	Version   int       `gorm:"primaryKey;type:int;not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务定义
func (tm *TaskModel) Validate() error {
	if tm.Name == "" {
		return errors.New("task name is required")
	}
	if tm.Version <= 0 {
		return errors.New("task version must be positive")
	}
	return nil
}
