package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env         string            `mapstructure:"env"` // 环境: development, production
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Log         LogConfig         `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port"`
	RateLimit float64 `mapstructure:"rate_limit"` // 每秒请求数, 0 表示不限制
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Path            string `mapstructure:"path"`   // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// MarketplaceConfig 众包平台配置
type MarketplaceConfig struct {
	Driver            string  `mapstructure:"driver"` // mturk, memory
	Endpoint          string  `mapstructure:"endpoint"`
	Region            string  `mapstructure:"region"`
	AccessKeyID       string  `mapstructure:"access_key_id"`
	SecretAccessKey   string  `mapstructure:"secret_access_key"`
	ExternalURL       string  `mapstructure:"external_url"` // 指向本服务 /worker/page 的公网地址, mturk 驱动创建 HIT 时必填
	AnswerField       string  `mapstructure:"answer_field"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// SyncConfig 同步配置
type SyncConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	Interval               time.Duration `mapstructure:"interval"`
	Concurrency            int           `mapstructure:"concurrency"`
	StrictAssignmentStatus bool          `mapstructure:"strict_assignment_status"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
	File   string `mapstructure:"file"`   // output 为 file 或 both 时的日志文件路径
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"` // Jaeger collector 地址
	ServiceName string `mapstructure:"service_name"`
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.turk-gin")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	switch c.Marketplace.Driver {
	case "mturk", "memory":
	default:
		return fmt.Errorf("unsupported marketplace driver: %q", c.Marketplace.Driver)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be positive")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 20)

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "turk.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "turk")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 300) // 5 分钟
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 600) // 10 分钟
	}

	// 众包平台默认配置, 非生产环境默认使用沙箱
	v.SetDefault("marketplace.driver", "mturk")
	if env == "production" {
		v.SetDefault("marketplace.endpoint", "")
	} else {
		v.SetDefault("marketplace.endpoint", "https://mturk-requester-sandbox.us-east-1.amazonaws.com")
	}
	v.SetDefault("marketplace.region", "us-east-1")
	v.SetDefault("marketplace.access_key_id", "")
	v.SetDefault("marketplace.secret_access_key", "")
	v.SetDefault("marketplace.external_url", "")
	v.SetDefault("marketplace.answer_field", "output")
	v.SetDefault("marketplace.requests_per_second", 5)
	v.SetDefault("marketplace.burst", 10)

	// 同步默认配置
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", "1m")
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.strict_assignment_status", false)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/turk-gin.log")

	// 追踪默认关闭
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", "turk-gin")
}
