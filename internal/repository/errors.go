package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict 乐观锁版本冲突, 记录已被其他同步修改
	ErrVersionConflict = errors.New("version conflict")
)

// translate 将 gorm 错误转换为仓储错误
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// updateVersioned 按 (id, version) 条件更新记录并递增版本号
// 没有匹配行时返回 ErrVersionConflict
func updateVersioned(ctx context.Context, db *gorm.DB, model interface{}, id string, version int, fields map[string]interface{}) error {
	fields["version"] = version + 1
	result := db.WithContext(ctx).Model(model).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id=%s version=%d", ErrVersionConflict, id, version)
	}
	return nil
}
