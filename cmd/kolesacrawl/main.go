package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RecoveryAshes/KolesaCrawl/internal/core"
	"github.com/RecoveryAshes/KolesaCrawl/internal/crawlers"
	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/RecoveryAshes/KolesaCrawl/internal/output"
	"github.com/RecoveryAshes/KolesaCrawl/internal/utils"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	logLevel   string
	headers    []string

	// 爬取参数
	categories     []string
	categoriesFile string
	workers        int
	maxActive      int
	mode           string
	outputDir      string
	headless       bool
	showProgress   bool
)

// 由 PersistentPreRunE 初始化
var (
	appConfig *core.Config
	logger    = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "kolesacrawl",
	Short: "kolesa.kz 分类列表爬取工具",
	Long: `KolesaCrawl - kolesa.kz 车辆列表爬取工具

按分类(品牌)持续爬取列表页和详情页, 每个分类输出一个CSV文件:
  • 多个分类任务并发运行, 数量受 --max-active 限制
  • 每页offer按 --workers 分批并发处理, 整批结束后再开始下一批
  • 支持浏览器渲染(dynamic)和纯HTTP(static)两种模式
  • 自定义HTTP请求头

示例:
  kolesacrawl -b toyota -b bmw
  kolesacrawl -f categories.txt -m static -w 8
  kolesacrawl -b toyota -H "Cookie: ssaid=..." --progress

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		config.MergeCLIFlags(core.CLIOverrides{LogLevel: logLevel})

		l, err := utils.NewLogger(config.LogConfig())
		if err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = config
		logger = l
		if config.ConfigFile != "" {
			logger.Debug().Str("file", config.ConfigFile).Msg("已加载配置文件")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 设置信号处理(Ctrl+C退出)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		go func() {
			sig := <-sigChan
			logger.Warn().Str("signal", sig.String()).Msg("收到中断信号, 退出")
			os.Exit(0)
		}()

		if err := ValidateFlags(workers, maxActive, mode); err != nil {
			return err
		}

		overrides := core.CLIOverrides{
			Workers:   workers,
			MaxActive: maxActive,
			Mode:      mode,
			OutputDir: outputDir,
		}
		if cmd.Flags().Changed("headless") {
			overrides.Headless = &headless
		}
		appConfig.MergeCLIFlags(overrides)

		list, err := ResolveCategories(appConfig.Categories, categories, categoriesFile, logger)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return cmd.Help()
		}
		appConfig.Categories = list

		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		headerManager, err := core.NewHeaderManager(appConfig.Headers, headers, logger)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if _, err := headerManager.GetHeaders(); err != nil {
			return fmt.Errorf("HTTP头部验证失败: %w", err)
		}

		return run(context.Background(), appConfig, headerManager)
	},
}

// run 调度全部分类任务并生成报告
func run(ctx context.Context, config *core.Config, headerProvider models.HeaderProvider) error {
	logger.Info().
		Strs("categories", config.Categories).
		Str("mode", string(config.Scrape.Mode)).
		Int("workers", config.Scrape.Workers).
		Int("max_active", config.Supervisor.MaxActive).
		Str("output", config.Output.BaseDir).
		Msg("🚀 开始爬取")

	writer := output.NewCSVWriter(config.Output.BaseDir, config.Scrape.Company, logger)
	runner := core.NewJobRunner(core.JobRunnerConfig{
		Scrape:  config.Scrape,
		Browser: config.BrowserOptions(),
		Headers: headerProvider,
		Writer:  writer,
	}, logger)

	supervisor := core.NewSupervisor(config.Supervisor, runner, logger)
	if config.Resource.MinAvailableMemoryMB > 0 || config.Resource.CPULoadThreshold > 0 {
		supervisor.WithAdmissionGate(crawlers.NewResourceMonitor(config.ResourceMonitorConfig(), logger))
	}
	if showProgress {
		supervisor.WithProgressBar(utils.NewProgressBar(len(config.Categories), "分类任务"))
	}

	summary := supervisor.Run(ctx, config.Categories)

	if config.Output.Report {
		reporter := utils.NewReporter(config.Output.BaseDir, logger)
		report := summary.Report(config.Output.BaseDir, config.Scrape, config.Supervisor)
		if err := reporter.GenerateReport(report); err != nil {
			logger.Warn().Err(err).Msg("生成报告失败")
		}
	}

	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("✅ 完成分类: %d\n", summary.Completed)
	fmt.Printf("❌ 失败分类: %d\n", summary.Failed)
	fmt.Printf("⏭️  跳过分类: %d\n", len(summary.Skipped))
	for _, job := range summary.Jobs {
		fmt.Printf("   %-16s %-9s 页数 %d  记录 %d  失败 %d\n",
			job.Category, job.Status, job.Stats.PagesVisited, job.Stats.RecordsWritten, job.Stats.FailedOffers)
	}
	fmt.Printf("⏱️  总耗时: %.2f秒\n", summary.EndTime.Sub(summary.StartTime).Seconds())
	fmt.Println("==================================================")

	logger.Info().Msg("✨ 爬取任务完成!")
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("KolesaCrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "验证配置文件和HTTP头部",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info().Msg("🔍 验证配置...")
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		headerManager, err := core.NewHeaderManager(appConfig.Headers, headers, logger)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := headerManager.Validate(); err != nil {
			return fmt.Errorf("HTTP头部验证失败: %w", err)
		}

		if appConfig.Scrape.Mode == models.ModeDynamic {
			checkBrowser(appConfig.Browser.Bin)
		}

		safeHeaders := headerManager.GetSafeHeaders()
		logger.Info().Msg("✅ 配置验证通过!")
		logger.Info().Msgf("当前有效的HTTP头部 (%d个):", len(safeHeaders))
		for name, value := range safeHeaders {
			logger.Info().Msgf("  %s: %s", name, value)
		}
		return nil
	},
}

// checkBrowser 检查dynamic模式所需的浏览器
func checkBrowser(bin string) {
	if bin != "" {
		if _, err := os.Stat(bin); err != nil {
			logger.Warn().Err(err).Str("bin", bin).Msg("❌ 指定的浏览器不存在")
			return
		}
		logger.Info().Str("bin", bin).Msg("✅ 浏览器可用")
		return
	}
	if path, found := launcher.LookPath(); found {
		logger.Info().Str("bin", path).Msg("✅ 已找到本地浏览器")
		return
	}
	logger.Warn().Msg("未找到本地浏览器, 首次运行时将自动下载Chromium")
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "显示CSV输出字段",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(strings.Join(models.ListingHeader(), ","))
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	// 爬取参数
	rootCmd.Flags().StringArrayVarP(&categories, "category", "b", []string{}, "分类(品牌)名称,可多次指定")
	rootCmd.Flags().StringVarP(&categoriesFile, "categories-file", "f", "", "包含分类列表的文件路径")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "每批并发处理的offer数 (默认读取配置, 5)")
	rootCmd.Flags().IntVarP(&maxActive, "max-active", "n", 0, "同时运行的分类任务数 (默认读取配置, 2)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "页面会话模式 (dynamic|static)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&showProgress, "progress", false, "显示分类任务进度条")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
