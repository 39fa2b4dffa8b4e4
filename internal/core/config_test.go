package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: debug\n")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", config.ConfigFile, path)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", config.Logging.Level)
	}

	s := config.Scrape
	if s.Company != "kolesa" || s.BaseURL != "https://kolesa.kz/" || s.ListingPath != "cars/{category}" {
		t.Errorf("站点默认值错误: %+v", s)
	}
	if s.Workers != 5 || s.Mode != models.ModeDynamic || s.PageParam != "page" {
		t.Errorf("爬取默认值错误: %+v", s)
	}
	if s.PageCooldown != 90*time.Second || s.PageLoadTimeout != 10*time.Second || s.WaitTimeout != 5*time.Second {
		t.Errorf("超时默认值错误: %+v", s)
	}
	if s.Retry.MaxAttempts != 20 || s.Retry.Backoff != time.Second || s.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("重试默认值错误: %+v", s.Retry)
	}
	if s.Selectors != models.DefaultSelectors() {
		t.Errorf("选择器默认值错误: %+v", s.Selectors)
	}

	sup := config.Supervisor
	if sup.MaxActive != 2 || sup.StaggerDelay != 60*time.Second || sup.ReclaimCooldown != 180*time.Second || sup.PollInterval != 5*time.Second {
		t.Errorf("调度默认值错误: %+v", sup)
	}

	if config.Output.BaseDir != "data" || !config.Output.Report {
		t.Errorf("输出默认值错误: %+v", config.Output)
	}
	if !config.Browser.Headless {
		t.Error("浏览器默认应为无头模式")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("默认配置应通过验证: %v", err)
	}
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
scrape:
  mode: static
  workers: 3
  page_cooldown: 30s
  retry:
    max_attempts: 0
supervisor:
  max_active: 4
headers:
  Accept-Language: kk-KZ
categories:
  - toyota
  - bmw
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Scrape.Mode != models.ModeStatic || config.Scrape.Workers != 3 {
		t.Errorf("scrape = %+v", config.Scrape)
	}
	if config.Scrape.PageCooldown != 30*time.Second {
		t.Errorf("PageCooldown = %v, want 30s", config.Scrape.PageCooldown)
	}
	if config.Scrape.Retry.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d, want 0", config.Scrape.Retry.MaxAttempts)
	}
	if config.Supervisor.MaxActive != 4 {
		t.Errorf("MaxActive = %d, want 4", config.Supervisor.MaxActive)
	}
	if len(config.Categories) != 2 || config.Categories[0] != "toyota" {
		t.Errorf("Categories = %v", config.Categories)
	}
	if config.Headers["accept-language"] != "kk-KZ" {
		t.Errorf("Headers = %v", config.Headers)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("KOLESACRAWL_SCRAPE_WORKERS", "9")
	t.Setenv("KOLESACRAWL_SUPERVISOR_MAX_ACTIVE", "6")

	config, err := LoadConfig(writeConfigFile(t, "scrape:\n  workers: 3\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Scrape.Workers != 9 {
		t.Errorf("Workers = %d, want 9", config.Scrape.Workers)
	}
	if config.Supervisor.MaxActive != 6 {
		t.Errorf("MaxActive = %d, want 6", config.Supervisor.MaxActive)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("文件不存在", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		var configErr *models.ConfigError
		if !errors.As(err, &configErr) {
			t.Errorf("LoadConfig() error = %v, want *models.ConfigError", err)
		}
	})

	t.Run("YAML格式错误", func(t *testing.T) {
		_, err := LoadConfig(writeConfigFile(t, "scrape: [workers\n"))
		if err == nil {
			t.Error("LoadConfig() 应返回错误")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		config, err := LoadConfig(writeConfigFile(t, "output:\n  base_dir: out\n"))
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		return config
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"默认配置", func(c *Config) {}, false},
		{"workers超出范围", func(c *Config) { c.Scrape.Workers = 0 }, true},
		{"非法模式", func(c *Config) { c.Scrape.Mode = "headless" }, true},
		{"max_active超出范围", func(c *Config) { c.Supervisor.MaxActive = 64 }, true},
		{"CPU阈值超出范围", func(c *Config) { c.Resource.CPULoadThreshold = 120 }, true},
		{"输出目录为空", func(c *Config) { c.Output.BaseDir = " " }, true},
		{"非法分类名", func(c *Config) { c.Categories = []string{"toyota", "../etc"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base(t)
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergeCLIFlags(t *testing.T) {
	config, err := LoadConfig(writeConfigFile(t, "categories:\n  - audi\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	headless := false
	config.MergeCLIFlags(CLIOverrides{
		LogLevel:   "warn",
		Categories: []string{"toyota"},
		Workers:    8,
		Mode:       "static",
		Headless:   &headless,
	})

	if config.Logging.Level != "warn" || config.Scrape.Workers != 8 || config.Scrape.Mode != models.ModeStatic {
		t.Errorf("合并结果错误: %+v", config)
	}
	if len(config.Categories) != 1 || config.Categories[0] != "toyota" {
		t.Errorf("Categories = %v, want [toyota]", config.Categories)
	}
	if config.Browser.Headless {
		t.Error("Headless 应被命令行覆盖为false")
	}
	if config.Supervisor.MaxActive != 2 {
		t.Errorf("未指定的项应保持不变, MaxActive = %d", config.Supervisor.MaxActive)
	}
}
