package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogConfig(t *testing.T, level string) (LogConfig, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	return LogConfig{
		Level:      level,
		LogDir:     t.TempDir(),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Console:    &console,
		NoColor:    true,
	}, &console
}

func TestNewLogger(t *testing.T) {
	config, console := newTestLogConfig(t, "debug")

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	logger.Info().Str("category", "toyota").Msg("测试信息日志")

	mainLogPath := filepath.Join(config.LogDir, MainLogFile)
	content, err := os.ReadFile(mainLogPath)
	if err != nil {
		t.Fatalf("读取主日志文件失败: %v", err)
	}
	if !strings.Contains(string(content), "测试信息日志") {
		t.Errorf("主日志文件缺少日志内容: %s", content)
	}
	if !strings.Contains(string(content), `"category":"toyota"`) {
		t.Errorf("主日志应为JSON格式并包含字段: %s", content)
	}
	if !strings.Contains(console.String(), "测试信息日志") {
		t.Errorf("控制台缺少日志内容: %s", console.String())
	}
}

func TestLogLevels(t *testing.T) {
	config, _ := newTestLogConfig(t, "info")

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	logger.Info().Msg("信息日志测试")
	logger.Warn().Msg("警告日志测试")
	logger.Debug().Msg("调试日志测试")

	content, err := os.ReadFile(filepath.Join(config.LogDir, MainLogFile))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	logContent := string(content)

	if !strings.Contains(logContent, "信息日志测试") {
		t.Error("日志文件缺少info级别日志")
	}
	if !strings.Contains(logContent, "警告日志测试") {
		t.Error("日志文件缺少warn级别日志")
	}
	if strings.Contains(logContent, "调试日志测试") {
		t.Error("info级别下不应输出debug日志")
	}
}

func TestErrorLogFile(t *testing.T) {
	config, _ := newTestLogConfig(t, "debug")

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	logger.Warn().Msg("只在主日志")
	logger.Error().Msg("错误日志测试")

	content, err := os.ReadFile(filepath.Join(config.LogDir, ErrorLogFile))
	if err != nil {
		t.Fatalf("读取错误日志文件失败: %v", err)
	}
	errContent := string(content)

	if !strings.Contains(errContent, "错误日志测试") {
		t.Error("错误日志文件缺少error级别日志")
	}
	if strings.Contains(errContent, "只在主日志") {
		t.Error("错误日志文件不应包含warn级别日志")
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	config, _ := newTestLogConfig(t, "verbose")

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	if logger.GetLevel().String() != "info" {
		t.Errorf("无效级别应回退为info, got %s", logger.GetLevel())
	}
}
