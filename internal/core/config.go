package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/KolesaCrawl/internal/crawlers"
	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/RecoveryAshes/KolesaCrawl/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 KOLESACRAWL_SCRAPE_WORKERS
const EnvPrefix = "KOLESACRAWL"

// Config 应用程序配置
type Config struct {
	Scrape     models.ScrapeConfig     `mapstructure:"scrape"`
	Supervisor models.SupervisorConfig `mapstructure:"supervisor"`
	Resource   ResourceConfig          `mapstructure:"resource"`
	Browser    BrowserConfig           `mapstructure:"browser"`
	Headers    map[string]string       `mapstructure:"headers"`
	Categories []string                `mapstructure:"categories"`
	Output     OutputConfig            `mapstructure:"output"`
	Logging    LoggingConfig           `mapstructure:"logging"`

	// ConfigFile 实际读取的配置文件, 未找到时为空
	ConfigFile string `mapstructure:"-"`
}

// ResourceConfig 资源检查配置
type ResourceConfig struct {
	MinAvailableMemoryMB int     `mapstructure:"min_available_memory_mb"`
	CPULoadThreshold     float64 `mapstructure:"cpu_load_threshold"`
}

// BrowserConfig 浏览器配置 (dynamic模式)
type BrowserConfig struct {
	Bin              string `mapstructure:"bin"`
	Headless         bool   `mapstructure:"headless"`
	NoSandbox        bool   `mapstructure:"no_sandbox"`
	Stealth          bool   `mapstructure:"stealth"`
	IgnoreCertErrors bool   `mapstructure:"ignore_cert_errors"`
	UserAgent        string `mapstructure:"user_agent"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	Report  bool   `mapstructure:"report"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
// configPath为空时按顺序搜索 ./configs/config.yaml, ./config.yaml, ~/.kolesacrawl/config.yaml;
// 找不到配置文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".kolesacrawl"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 爬取配置
	v.SetDefault("scrape.company", "kolesa")
	v.SetDefault("scrape.base_url", "https://kolesa.kz/")
	v.SetDefault("scrape.listing_path", "cars/"+models.CategoryPlaceholder)
	v.SetDefault("scrape.page_param", "page")
	v.SetDefault("scrape.mode", string(models.ModeDynamic))
	v.SetDefault("scrape.workers", 5)
	v.SetDefault("scrape.page_cooldown", 90*time.Second)
	v.SetDefault("scrape.page_load_timeout", 10*time.Second)
	v.SetDefault("scrape.wait_timeout", 5*time.Second)
	v.SetDefault("scrape.retry.max_attempts", 20)
	v.SetDefault("scrape.retry.backoff", time.Second)
	v.SetDefault("scrape.retry.max_backoff", 30*time.Second)

	sel := models.DefaultSelectors()
	v.SetDefault("scrape.selectors.page_count", sel.PageCount)
	v.SetDefault("scrape.selectors.offer_link", sel.OfferLink)
	v.SetDefault("scrape.selectors.no_results", sel.NoResults)
	v.SetDefault("scrape.selectors.detail_ready", sel.DetailReady)
	v.SetDefault("scrape.selectors.brand", sel.Brand)
	v.SetDefault("scrape.selectors.name", sel.Name)
	v.SetDefault("scrape.selectors.year", sel.Year)
	v.SetDefault("scrape.selectors.price", sel.Price)
	v.SetDefault("scrape.selectors.description", sel.Description)
	v.SetDefault("scrape.selectors.spec_row", sel.SpecRow)

	// 调度配置
	v.SetDefault("supervisor.max_active", 2)
	v.SetDefault("supervisor.stagger_delay", 60*time.Second)
	v.SetDefault("supervisor.reclaim_cooldown", 180*time.Second)
	v.SetDefault("supervisor.poll_interval", 5*time.Second)

	// 资源检查 (0 = 不检查)
	v.SetDefault("resource.min_available_memory_mb", 0)
	v.SetDefault("resource.cpu_load_threshold", 0)

	// 浏览器配置
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.stealth", false)
	v.SetDefault("browser.ignore_cert_errors", false)
	v.SetDefault("browser.user_agent", "")

	v.SetDefault("headers", map[string]string{})
	v.SetDefault("categories", []string{})

	// 输出配置
	v.SetDefault("output.base_dir", "data")
	v.SetDefault("output.report", true)

	// 日志配置
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Scrape.Validate(); err != nil {
		return fmt.Errorf("scrape配置无效: %w", err)
	}
	if err := c.Supervisor.Validate(); err != nil {
		return fmt.Errorf("supervisor配置无效: %w", err)
	}
	if c.Resource.MinAvailableMemoryMB < 0 {
		return fmt.Errorf("resource.min_available_memory_mb不能为负数")
	}
	if c.Resource.CPULoadThreshold < 0 || c.Resource.CPULoadThreshold > 100 {
		return fmt.Errorf("resource.cpu_load_threshold必须在0-100之间")
	}
	if strings.TrimSpace(c.Output.BaseDir) == "" {
		return fmt.Errorf("output.base_dir不能为空")
	}
	for _, category := range c.Categories {
		if err := models.ValidateCategory(strings.TrimSpace(category)); err != nil {
			return fmt.Errorf("categories配置无效: %w", err)
		}
	}
	return nil
}

// CLIOverrides 命令行覆盖项, 零值表示未指定
type CLIOverrides struct {
	LogLevel   string
	Categories []string
	Workers    int
	MaxActive  int
	Mode       string
	OutputDir  string
	Headless   *bool
}

// MergeCLIFlags 合并命令行参数到配置 (命令行优先)
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if len(o.Categories) > 0 {
		c.Categories = o.Categories
	}
	if o.Workers > 0 {
		c.Scrape.Workers = o.Workers
	}
	if o.MaxActive > 0 {
		c.Supervisor.MaxActive = o.MaxActive
	}
	if o.Mode != "" {
		c.Scrape.Mode = models.SessionMode(o.Mode)
	}
	if o.OutputDir != "" {
		c.Output.BaseDir = o.OutputDir
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// BrowserOptions 转换为浏览器启动参数
func (c *Config) BrowserOptions() crawlers.BrowserOptions {
	return crawlers.BrowserOptions{
		Bin:              c.Browser.Bin,
		Headless:         c.Browser.Headless,
		NoSandbox:        c.Browser.NoSandbox,
		Stealth:          c.Browser.Stealth,
		IgnoreCertErrors: c.Browser.IgnoreCertErrors,
		UserAgent:        c.Browser.UserAgent,
	}
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	return crawlers.ResourceMonitorConfig{
		MinAvailableMemoryMB: c.Resource.MinAvailableMemoryMB,
		CPULoadThreshold:     c.Resource.CPULoadThreshold,
	}
}
