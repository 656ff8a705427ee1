package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// idPattern 批次 ID 为 UUID, HIT 和作业 ID 由市场分配, 均为字母数字
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxFeedbackLength MTurk RequesterFeedback 的长度上限
const MaxFeedbackLength = 1024

// ValidateID 验证批次、HIT 或作业 ID 格式
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if !idPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}
	if len(id) > 64 {
		return ErrIDTooLong
	}
	return nil
}

// TrimAndValidate 去除首尾空白并检查长度, maxLen 按字符计
func TrimAndValidate(s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrEmptyString
	}
	if maxLen > 0 && utf8.RuneCountInString(trimmed) > maxLen {
		return "", ErrStringTooLong
	}
	return trimmed, nil
}

// 错误定义
var (
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrEmptyString     = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong   = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
