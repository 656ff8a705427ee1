package lifecycle

import (
	"errors"

	"github.com/mautops/turk-gin/internal/repository"
)

var (
	// ErrUnknownStatus 远端返回了无法识别的状态
	ErrUnknownStatus = errors.New("unrecognized remote status")
	// ErrInvalidTransition 当前状态不允许该操作
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrConcurrentUpdate 记录在读取后被其他同步修改
	ErrConcurrentUpdate = repository.ErrVersionConflict
)
