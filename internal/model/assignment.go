package model

import (
	"encoding/json"
	"errors"
	"time"
)

// AssignmentModel 作业数据模型
// 只在 HIT 同步时首次观察到才创建, 永不删除
type AssignmentModel struct {
	ID           string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	HITID        string          `gorm:"column:hit_id;type:varchar(64);not null;index" json:"hit_id"`
	WorkerID     string          `gorm:"type:varchar(64);not null;index" json:"worker_id"`
	OutputData   json.RawMessage `gorm:"type:jsonb;not null" json:"output_data"`
	State        AssignmentState `gorm:"type:varchar(32);not null;index" json:"state"`
	Version      int             `gorm:"type:int;not null;default:1" json:"version"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
}

// TableName 指定表名
func (AssignmentModel) TableName() string {
	return "assignments"
}

// Validate 验证作业模型
func (am *AssignmentModel) Validate() error {
	if am.ID == "" {
		return errors.New("assignment ID is required")
	}
	if am.HITID == "" {
		return errors.New("HIT ID is required")
	}
	if len(am.OutputData) == 0 {
		return errors.New("assignment output data is required")
	}
	return nil
}
