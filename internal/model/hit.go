package model

import (
	"encoding/json"
	"errors"
	"time"
)

// HITModel HIT 数据模型
// ID 即市场分配的 HITId, 本地不生成 ID
type HITModel struct {
	ID                      string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	HITTypeID               string          `gorm:"column:hit_type_id;type:varchar(64)" json:"hit_type_id"`
	BatchID                 string          `gorm:"type:varchar(64);not null;index" json:"batch_id"`
	InputData               json.RawMessage `gorm:"type:jsonb;not null" json:"input_data"`
	OutputData              json.RawMessage `gorm:"type:jsonb" json:"output_data"` // 聚合完成后才写入
	ExpectedAssignmentCount int             `gorm:"type:int;not null" json:"expected_assignment_count"`
	State                   HITState        `gorm:"type:varchar(32);not null;index" json:"state"`
	Version                 int             `gorm:"type:int;not null;default:1" json:"version"`
	CreatedAt               time.Time       `gorm:"not null" json:"created_at"`
	LastSyncedAt            *time.Time      `gorm:"index" json:"last_synced_at,omitempty"`
}

// TableName 指定表名
func (HITModel) TableName() string {
	return "hits"
}

// Validate 验证 HIT 模型
func (hm *HITModel) Validate() error {
	if hm.ID == "" {
		return errors.New("HIT ID is required")
	}
	if hm.BatchID == "" {
		return errors.New("batch ID is required")
	}
	if !hm.State.Valid() {
		return errors.New("HIT state is invalid")
	}
	if hm.ExpectedAssignmentCount <= 0 {
		return errors.New("expected assignment count must be positive")
	}
	if len(hm.InputData) == 0 {
		return errors.New("HIT input data is required")
	}
	return nil
}
