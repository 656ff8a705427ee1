package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置, 未设置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pool := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pool.MaxIdleConns == 0 {
		pool.MaxIdleConns = 10
	}
	if pool.MaxOpenConns == 0 {
		pool.MaxOpenConns = 100
	}
	if pool.ConnMaxLifetime == 0 {
		pool.ConnMaxLifetime = 3600
	}
	if pool.ConnMaxIdleTime == 0 {
		pool.ConnMaxIdleTime = 600
	}
	return pool
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "postgres", "":
		dialector = postgres.Open(BuildDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite 只允许一个写连接, :memory: 库在每个连接上各自独立
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	pool := GetPoolConfig(cfg)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb，需要手动创建表
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		if err := db.AutoMigrate(
			&model.TaskModel{},
			&model.BatchModel{},
			&model.HITModel{},
			&model.AssignmentModel{},
			&model.StateHistoryModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

var sqliteTables = []struct {
	name string
	ddl  string
}{
	{"tasks", `
		CREATE TABLE IF NOT EXISTS tasks (
			name VARCHAR(128) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (name, version)
		)`},
	{"batches", `
		CREATE TABLE IF NOT EXISTS batches (
			id VARCHAR(64) PRIMARY KEY,
			task_name VARCHAR(128) NOT NULL,
			task_version INTEGER NOT NULL,
			state VARCHAR(32) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			last_synced_at DATETIME
		)`},
	{"hits", `
		CREATE TABLE IF NOT EXISTS hits (
			id VARCHAR(64) PRIMARY KEY,
			hit_type_id VARCHAR(64),
			batch_id VARCHAR(64) NOT NULL,
			input_data TEXT NOT NULL,
			output_data TEXT,
			expected_assignment_count INTEGER NOT NULL,
			state VARCHAR(32) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			last_synced_at DATETIME
		)`},
	{"assignments", `
		CREATE TABLE IF NOT EXISTS assignments (
			id VARCHAR(64) PRIMARY KEY,
			hit_id VARCHAR(64) NOT NULL,
			worker_id VARCHAR(64) NOT NULL,
			output_data TEXT NOT NULL,
			state VARCHAR(32) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			last_synced_at DATETIME
		)`},
	{"state_history", `
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			entity_type VARCHAR(32) NOT NULL,
			entity_id VARCHAR(64) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			reason TEXT,
			operator VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL
		)`},
}

// createSQLiteTables 为 SQLite 手动创建表（使用 TEXT 替代 jsonb）
func createSQLiteTables(db *gorm.DB) error {
	for _, t := range sqliteTables {
		if err := db.Exec(t.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

var indexes = []struct {
	name string
	ddl  string
}{
	{"idx_batches_state", "CREATE INDEX IF NOT EXISTS idx_batches_state ON batches(state)"},
	{"idx_batches_task", "CREATE INDEX IF NOT EXISTS idx_batches_task ON batches(task_name, task_version)"},
	{"idx_hits_batch_state", "CREATE INDEX IF NOT EXISTS idx_hits_batch_state ON hits(batch_id, state)"},
	{"idx_assignments_hit_id", "CREATE INDEX IF NOT EXISTS idx_assignments_hit_id ON assignments(hit_id)"},
	{"idx_assignments_worker_id", "CREATE INDEX IF NOT EXISTS idx_assignments_worker_id ON assignments(worker_id)"},
	{"idx_history_entity", "CREATE INDEX IF NOT EXISTS idx_history_entity ON state_history(entity_type, entity_id)"},
	{"idx_history_created_at", "CREATE INDEX IF NOT EXISTS idx_history_created_at ON state_history(created_at)"},
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	for _, idx := range indexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	// PostgreSQL 特定的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_hits_input_gin ON hits USING GIN (input_data)").Error; err != nil {
			return fmt.Errorf("failed to create idx_hits_input_gin: %w", err)
		}
	}
	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}
