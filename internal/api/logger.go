package api

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mautops/turk-gin/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	logService      = "turk-gin"
	defaultLogFile  = "logs/turk-gin.log"
	logTimestampFmt = "2006-01-02T15:04:05.000Z07:00"
)

var defaultLogger *logrus.Logger

// NewLogger 创建输出到标准输出的 JSON 日志记录器
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(newFormatter("json"))
	logger.SetLevel(logrus.InfoLevel)
	logger.SetOutput(os.Stdout)
	return logger
}

// NewLoggerFromConfig 根据配置创建日志记录器
// 每条日志都带 service 字段, fields 追加其他固定字段(如 env)
func NewLoggerFromConfig(cfg *config.LogConfig, fields logrus.Fields) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(newFormatter(cfg.Format))

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	var writers []io.Writer
	if cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		file, err := openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	logger.SetOutput(io.MultiWriter(writers...))

	defaults := logrus.Fields{"service": logService}
	for k, v := range fields {
		if v != "" {
			defaults[k] = v
		}
	}
	logger.AddHook(&defaultFieldsHook{fields: defaults})

	return logger, nil
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: logTimestampFmt,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "time",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		}
	}
	return &logrus.TextFormatter{
		TimestampFormat: logTimestampFmt,
		FullTimestamp:   true,
	}
}

// openLogFile 以追加方式打开日志文件, 目录不存在时创建
func openLogFile(path string) (*os.File, error) {
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// defaultFieldsHook 为每条日志补充固定字段, 调用方显式设置的同名字段优先
type defaultFieldsHook struct {
	fields logrus.Fields
}

func (h *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// SetLogger 替换默认日志记录器
func SetLogger(logger *logrus.Logger) {
	defaultLogger = logger
}

// GetLogger 获取默认日志记录器
func GetLogger() *logrus.Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger()
	}
	return defaultLogger
}
