package container_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewContainer_Memory 测试使用内存市场和 SQLite 组装依赖
func TestNewContainer_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = ":memory:"
	cfg.Marketplace.Driver = "memory"
	cfg.Log.Level = "error"

	c, err := container.NewContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Sandbox())
	assert.Equal(t, c.Sandbox(), c.Marketplace())
	assert.NotNil(t, c.Manager())
	assert.NotNil(t, c.Hub())
	assert.NotEmpty(t, c.Registry().All())

	batch, err := c.Manager().CreateBatch(context.Background(), "example", []json.RawMessage{json.RawMessage(`{"text": "a"}`)})
	require.NoError(t, err)
	hits, err := c.Manager().ListHITs(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	_, err = c.Sandbox().GetHIT(context.Background(), hits[0].ID)
	assert.NoError(t, err)

	require.NoError(t, c.Collector().CollectHITStates(context.Background()))

	c.ApplySyncConfig(config.SyncConfig{Interval: time.Minute, Concurrency: 2})
}
