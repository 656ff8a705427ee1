package marketplace_test

import (
	"context"
	"testing"

	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRevoke 测试撤销没有作业的 HIT
func TestRevoke(t *testing.T) {
	ctx := context.Background()
	client := marketplace.NewMemoryClient()
	hitID := createHIT(t, client)

	deleted, err := marketplace.Revoke(ctx, client, hitID)
	require.NoError(t, err)
	assert.True(t, deleted)

	hit, err := client.GetHIT(ctx, hitID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.HITStatusDisposed, hit.Status)

	// 已处置的 HIT 再次撤销返回 false
	deleted, err = marketplace.Revoke(ctx, client, hitID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

// TestRevoke_MustBeReviewed 测试有待审核作业时拒绝删除
func TestRevoke_MustBeReviewed(t *testing.T) {
	ctx := context.Background()
	client := marketplace.NewMemoryClient()
	hitID := createHIT(t, client)
	assignmentID := submit(t, client, hitID, "W1")

	_, err := marketplace.Revoke(ctx, client, hitID)
	assert.ErrorIs(t, err, marketplace.ErrHITMustBeReviewed)

	hit, err := client.GetHIT(ctx, hitID)
	require.NoError(t, err)
	assert.NotEqual(t, marketplace.HITStatusDisposed, hit.Status)

	// 审核后可以删除
	approved, err := marketplace.Approve(ctx, client, assignmentID)
	require.NoError(t, err)
	assert.True(t, approved)

	deleted, err := marketplace.Revoke(ctx, client, hitID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

// TestRevoke_InconsistentCounters 测试计数之和超过上限
func TestRevoke_InconsistentCounters(t *testing.T) {
	ctx := context.Background()
	client := marketplace.NewMemoryClient()
	hitID := createHIT(t, client)
	require.NoError(t, client.SetCounters(hitID, 3, 2, 2, 0))

	_, err := marketplace.Revoke(ctx, client, hitID)
	assert.ErrorIs(t, err, marketplace.ErrInconsistentCounters)
}

// TestRevoke_StillAssignable 测试过期后状态仍不可删除
func TestRevoke_StillAssignable(t *testing.T) {
	ctx := context.Background()
	client := marketplace.NewMemoryClient()
	hitID := createHIT(t, client)
	require.NoError(t, client.SetHITStatus(hitID, marketplace.HITStatusAssignable))

	_, err := marketplace.Revoke(ctx, client, hitID)
	assert.ErrorIs(t, err, marketplace.ErrInvalidStatus)
}

// TestCheckRevocable 测试预检不修改远端
func TestCheckRevocable(t *testing.T) {
	ctx := context.Background()
	client := marketplace.NewMemoryClient()
	hitID := createHIT(t, client)
	require.NoError(t, marketplace.CheckRevocable(ctx, client, hitID))

	submit(t, client, hitID, "W1")
	err := marketplace.CheckRevocable(ctx, client, hitID)
	assert.ErrorIs(t, err, marketplace.ErrHITMustBeReviewed)

	hit, err := client.GetHIT(ctx, hitID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.HITStatusAssignable, hit.Status)
}

// TestApprove 测试批准的前置条件
func TestApprove(t *testing.T) {
	ctx := context.Background()
	client := marketplace.NewMemoryClient()
	hitID := createHIT(t, client)
	first := submit(t, client, hitID, "W1")
	second := submit(t, client, hitID, "W2")

	ok, err := marketplace.Approve(ctx, client, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = marketplace.Approve(ctx, client, first)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = marketplace.Reject(ctx, client, first, "")
	assert.ErrorIs(t, err, marketplace.ErrInvalidStatus)

	require.NoError(t, client.SetAssignmentStatus(second, "Abandoned"))
	_, err = marketplace.Approve(ctx, client, second)
	assert.ErrorIs(t, err, marketplace.ErrInvalidStatus)
}

// TestReject 测试拒绝的前置条件
func TestReject(t *testing.T) {
	ctx := context.Background()
	client := marketplace.NewMemoryClient()
	hitID := createHIT(t, client)
	assignmentID := submit(t, client, hitID, "W1")

	ok, err := marketplace.Reject(ctx, client, assignmentID, "empty answer")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = marketplace.Reject(ctx, client, assignmentID, "empty answer")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = marketplace.Approve(ctx, client, assignmentID)
	assert.ErrorIs(t, err, marketplace.ErrInvalidStatus)
}
