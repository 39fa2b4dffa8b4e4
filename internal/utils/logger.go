package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// MainLogFile 主日志文件名
	MainLogFile = "kolesacrawl.log"
	// ErrorLogFile 错误日志文件名
	ErrorLogFile = "kolesacrawl_error.log"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string    // 日志级别: trace, debug, info, warn, error, fatal, panic
	LogDir     string    // 日志目录
	MaxSize    int       // 单个日志文件最大大小(MB)
	MaxBackups int       // 保留的旧日志文件数量
	MaxAge     int       // 保留天数
	Compress   bool      // 是否压缩旧日志
	Console    io.Writer // 控制台输出, nil 表示 os.Stdout
	NoColor    bool
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// NewLogger 创建日志器
// 输出:
//  1. 彩色控制台
//  2. 主日志文件(所有级别, JSON)
//  3. 错误日志文件(仅错误及以上级别, JSON)
//
// 日志器由调用方逐层注入, 不设置全局logger
func NewLogger(config LogConfig) (zerolog.Logger, error) {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return zerolog.Nop(), fmt.Errorf("创建日志目录失败 [%s]: %w", config.LogDir, err)
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	mainLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(config.LogDir, MainLogFile),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	errorLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(config.LogDir, ErrorLogFile),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	console := config.Console
	if console == nil {
		console = os.Stdout
	}
	consoleWriter := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
		NoColor:    config.NoColor,
	}

	multiWriter := zerolog.MultiLevelWriter(
		consoleWriter,
		mainLogFile,
		&FilteredWriter{Writer: errorLogFile, MinLevel: zerolog.ErrorLevel},
	)

	logger := zerolog.New(multiWriter).
		Level(level).
		With().
		Timestamp().
		Logger()

	logger.Debug().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")

	return logger, nil
}

// FilteredWriter 过滤写入器,仅写入指定级别及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 无级别信息的写入直接丢弃
func (w *FilteredWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// WriteLevel 带级别的写入
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level >= w.MinLevel && level != zerolog.NoLevel {
		return w.Writer.Write(p)
	}
	return len(p), nil
}
