package database_test

import (
	"testing"
	"time"

	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMigrate_SQLite 测试 SQLite 建表和建索引可重复执行
func TestMigrate_SQLite(t *testing.T) {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"tasks", "batches", "hits", "assignments", "state_history"} {
		assert.True(t, db.Migrator().HasTable(table), "table %s should exist", table)
	}
	assert.True(t, db.Migrator().HasIndex("hits", "idx_hits_batch_state"))
	assert.True(t, database.CheckHealth(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	sqlDB.Close()
	assert.False(t, database.CheckHealth(db))
}

// TestConnect_UnsupportedDriver 测试未知驱动
func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := database.Connect(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)

	_, err = database.ConnectWithRetry(config.DatabaseConfig{Driver: "mysql"}, 2, time.Millisecond)
	assert.Error(t, err)
}

// TestGetPoolConfig 测试连接池默认值
func TestGetPoolConfig(t *testing.T) {
	pool := database.GetPoolConfig(config.DatabaseConfig{MaxOpenConns: 20})
	assert.Equal(t, 20, pool.MaxOpenConns)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 3600, pool.ConnMaxLifetime)

	dsn := database.BuildDSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "turk", Password: "secret", DBName: "turk", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=turk password=secret dbname=turk sslmode=disable", dsn)
}
