package utils_test

import (
	"strings"
	"testing"

	"github.com/mautops/turk-gin/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateID 测试 ID 格式校验
func TestValidateID(t *testing.T) {
	assert.NoError(t, utils.ValidateID("3XJOUITW8URHJMX0ENYWRZ6HBF3TQX"))
	assert.NoError(t, utils.ValidateID("6f1c2a3e-4b5d-4e6f-8a9b-0c1d2e3f4a5b"))
	assert.Equal(t, utils.ErrEmptyID, utils.ValidateID(""))
	assert.Equal(t, utils.ErrInvalidIDFormat, utils.ValidateID("HIT1; DROP TABLE hits"))
	assert.Equal(t, utils.ErrIDTooLong, utils.ValidateID(strings.Repeat("a", 65)))
}

// TestTrimAndValidate 测试去除空白和长度限制
func TestTrimAndValidate(t *testing.T) {
	s, err := utils.TrimAndValidate("  bad answer \n", utils.MaxFeedbackLength)
	require.NoError(t, err)
	assert.Equal(t, "bad answer", s)

	_, err = utils.TrimAndValidate("   ", 10)
	assert.Equal(t, utils.ErrEmptyString, err)

	_, err = utils.TrimAndValidate(strings.Repeat("好", 11), 10)
	assert.Equal(t, utils.ErrStringTooLong, err)

	s, err = utils.TrimAndValidate(strings.Repeat("好", 10), 10)
	require.NoError(t, err)
	assert.Len(t, []rune(s), 10)
}
