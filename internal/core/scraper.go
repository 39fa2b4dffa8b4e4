package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/KolesaCrawl/internal/crawlers"
	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/RecoveryAshes/KolesaCrawl/internal/output"
	"github.com/RecoveryAshes/KolesaCrawl/internal/utils"
	"github.com/rs/zerolog"
)

// CategoryScraper 单个分类的分页驱动
// 逐页加载列表页, 收集offer链接, 交给分批调度器处理, 每页之后冷却
type CategoryScraper struct {
	config     models.ScrapeConfig
	baseURL    *url.URL
	factory    crawlers.SessionFactory
	loader     *crawlers.Loader
	dispatcher *crawlers.Dispatcher
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewCategoryScraper 创建分页驱动
// factory 同时为列表页会话和每个Worker的详情页会话提供页面
func NewCategoryScraper(config models.ScrapeConfig, factory crawlers.SessionFactory, writer output.RecordWriter, logger zerolog.Logger) (*CategoryScraper, error) {
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("解析base_url失败: %w", err)
	}

	loader := crawlers.NewLoader(LoaderConfig(config), logger)
	extractor := crawlers.NewExtractor(config.Company, config.Selectors, logger)
	worker := crawlers.NewWorker(factory, loader, extractor, writer, logger)

	return &CategoryScraper{
		config:     config,
		baseURL:    baseURL,
		factory:    factory,
		loader:     loader,
		dispatcher: crawlers.NewDispatcher(worker, config.Workers, logger),
		logger:     logger,
		sleep:      utils.SleepContext,
	}, nil
}

// LoaderConfig 由爬取配置生成页面加载配置
func LoaderConfig(config models.ScrapeConfig) crawlers.LoaderConfig {
	return crawlers.LoaderConfig{
		PageLoadTimeout: config.PageLoadTimeout,
		WaitTimeout:     config.WaitTimeout,
		Retry: crawlers.RetryPolicy{
			MaxAttempts: config.Retry.MaxAttempts,
			Backoff:     config.Retry.Backoff,
			MaxBackoff:  config.Retry.MaxBackoff,
		},
		ListingReady: config.Selectors.OfferLink,
		NoResults:    config.Selectors.NoResults,
		DetailReady:  config.Selectors.DetailReady,
	}
}

// ListingURL 构造列表页URL, 第1页不带页码参数
func (cs *CategoryScraper) ListingURL(category string, page int) (string, error) {
	path := strings.ReplaceAll(cs.config.ListingPath, models.CategoryPlaceholder, url.PathEscape(category))
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("解析列表页路径失败: %w", err)
	}
	u := cs.baseURL.ResolveReference(ref)
	if page > 1 {
		q := u.Query()
		q.Set(cs.config.PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// RunCategory 执行一个分类任务
// 访问第1..P页各一次, P在每次导航后重新读取
func (cs *CategoryScraper) RunCategory(ctx context.Context, job *models.CategoryJob) error {
	logger := cs.logger.With().Str("category", job.Category).Str("job_id", job.ID).Logger()
	logger.Info().Msg("🚀 开始分类任务")

	session, err := cs.factory.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("创建列表页会话失败: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("关闭列表页会话失败")
		}
	}()

	totalPages := 1
	for page := 1; page <= totalPages; page++ {
		pageLogger := logger.With().Int("page", page).Logger()

		listingURL, err := cs.ListingURL(job.Category, page)
		if err != nil {
			return err
		}

		found, err := cs.loader.LoadListing(ctx, session, listingURL)
		if err != nil {
			return fmt.Errorf("加载列表页失败 [第%d页]: %w", page, err)
		}
		job.Stats.PagesVisited++

		totalPages = cs.readPageCount(session, pageLogger)
		job.Stats.TotalPages = totalPages

		var offers []string
		if found {
			offers = cs.collectOffers(session, pageLogger)
		}
		if len(offers) == 0 {
			job.Stats.EmptyPages++
			pageLogger.Info().Msg("列表页没有offer")
		} else {
			job.Stats.OffersFound += len(offers)
			pageLogger.Info().Msgf("第%d/%d页: 找到%d个offer", page, totalPages, len(offers))

			result := cs.dispatcher.Dispatch(ctx, job.Category, offers)
			job.Stats.RecordsWritten += result.Succeeded
			job.Stats.FailedOffers += result.Failed
			pageLogger.Info().
				Int("succeeded", result.Succeeded).
				Int("failed", result.Failed).
				Msg("✅ 当前页处理完成")
		}

		pageLogger.Debug().Dur("cooldown", cs.config.PageCooldown).Msg("翻页冷却")
		if err := cs.sleep(ctx, cs.config.PageCooldown); err != nil {
			return fmt.Errorf("翻页冷却被中断: %w", err)
		}
	}

	logger.Info().
		Int("pages", job.Stats.PagesVisited).
		Int("records", job.Stats.RecordsWritten).
		Msg("✅ 分类任务完成")
	return nil
}

// readPageCount 读取总页数, 缺失或无法解析时为1
func (cs *CategoryScraper) readPageCount(s crawlers.PageSession, logger zerolog.Logger) int {
	if cs.config.Selectors.PageCount == "" {
		return 1
	}
	el, err := s.FindOne(cs.config.Selectors.PageCount)
	if err != nil {
		if !errors.Is(err, crawlers.ErrElementNotFound) {
			logger.Warn().Err(err).Msg("读取页数失败, 按1页处理")
		}
		return 1
	}
	text, err := el.Text()
	if err != nil {
		logger.Warn().Err(err).Msg("读取页数文本失败, 按1页处理")
		return 1
	}
	n, err := strconv.Atoi(models.CleanNumeric(strings.TrimSpace(text)))
	if err != nil || n < 1 {
		logger.Warn().Str("text", text).Msg("无法解析页数, 按1页处理")
		return 1
	}
	return n
}

// collectOffers 收集当前页的offer链接
// 相对地址按base_url解析为绝对地址, 页内去重并保持顺序
func (cs *CategoryScraper) collectOffers(s crawlers.PageSession, logger zerolog.Logger) []string {
	elements, err := s.FindAll(cs.config.Selectors.OfferLink)
	if err != nil {
		logger.Warn().Err(err).Msg("查找offer链接失败")
		return nil
	}

	seen := make(map[string]bool, len(elements))
	offers := make([]string, 0, len(elements))
	for _, el := range elements {
		href, ok, err := el.Attribute("href")
		if err != nil || !ok || strings.TrimSpace(href) == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logger.Debug().Str("href", href).Msg("跳过无效链接")
			continue
		}
		abs := cs.baseURL.ResolveReference(ref)
		abs.Fragment = ""
		offer := abs.String()
		if seen[offer] {
			continue
		}
		seen[offer] = true
		offers = append(offers, offer)
	}
	return offers
}

// JobRunnerConfig 每个分类任务的运行依赖
type JobRunnerConfig struct {
	Scrape  models.ScrapeConfig
	Browser crawlers.BrowserOptions
	Headers models.HeaderProvider
	Writer  output.RecordWriter
}

// NewJobRunner 返回供Supervisor调用的任务函数
// 每个分类任务拥有独立的会话工厂 (dynamic模式下为独立的浏览器进程), 任务结束后关闭
func NewJobRunner(config JobRunnerConfig, logger zerolog.Logger) RunJobFunc {
	return func(ctx context.Context, job *models.CategoryJob) error {
		headers, err := config.Headers.GetHeaders()
		if err != nil {
			return fmt.Errorf("获取HTTP头部失败: %w", err)
		}

		factory, err := newSessionFactory(config, headers, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := factory.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Str("category", job.Category).Msg("关闭会话工厂失败")
			}
		}()

		scraper, err := NewCategoryScraper(config.Scrape, factory, config.Writer, logger)
		if err != nil {
			return err
		}
		return scraper.RunCategory(ctx, job)
	}
}

// newSessionFactory 按模式创建会话工厂
func newSessionFactory(config JobRunnerConfig, headers http.Header, logger zerolog.Logger) (crawlers.SessionFactory, error) {
	switch config.Scrape.Mode {
	case models.ModeStatic:
		return crawlers.NewStaticSessionFactory(headers, config.Browser.UserAgent, logger), nil
	case models.ModeDynamic:
		factory, err := crawlers.NewRodSessionFactory(config.Browser, headers, logger)
		if err != nil {
			return nil, fmt.Errorf("启动浏览器失败: %w", err)
		}
		return factory, nil
	default:
		return nil, fmt.Errorf("无效的会话模式: %s", config.Scrape.Mode)
	}
}
