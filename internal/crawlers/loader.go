package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/KolesaCrawl/internal/utils"
	"github.com/rs/zerolog"
)

// RetryPolicy 页面加载重试策略
// MaxAttempts 为0时无限重试; 每次失败后等待 Backoff*2^(n-1), 不超过 MaxBackoff
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// Delay 第attempt次失败后的等待时间 (attempt从1开始)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff <= 0 || attempt < 1 {
		return 0
	}
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// LoaderConfig 页面加载配置
type LoaderConfig struct {
	PageLoadTimeout time.Duration
	WaitTimeout     time.Duration
	Retry           RetryPolicy

	ListingReady string // 列表页就绪选择器 (offer链接)
	NoResults    string // 列表页"无结果"选择器, 可为空
	DetailReady  string // 详情页就绪选择器
}

// Loader 带重试的页面加载器
type Loader struct {
	config LoaderConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewLoader 创建页面加载器
func NewLoader(config LoaderConfig, logger zerolog.Logger) *Loader {
	return &Loader{
		config: config,
		logger: logger,
		sleep:  utils.SleepContext,
	}
}

// attemptResult 单次加载结果
type attemptResult int

const (
	attemptFailed attemptResult = iota
	attemptReady
	attemptEmpty
)

// LoadListing 加载列表页
// found为false且err为nil表示列表为空 (没有offer)
func (l *Loader) LoadListing(ctx context.Context, s PageSession, url string) (found bool, err error) {
	res, err := l.load(ctx, s, url, l.config.ListingReady, true)
	if err != nil {
		return false, err
	}
	return res == attemptReady, nil
}

// LoadDetail 加载详情页, 直到就绪选择器出现或重试耗尽
func (l *Loader) LoadDetail(ctx context.Context, s PageSession, url string) error {
	_, err := l.load(ctx, s, url, l.config.DetailReady, false)
	return err
}

func (l *Loader) load(ctx context.Context, s PageSession, url, selector string, listing bool) (attemptResult, error) {
	logger := l.logger.With().Str("url", url).Logger()
	policy := l.config.Retry

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attemptFailed, err
		}

		res, err := l.attempt(ctx, s, url, selector, listing, logger)
		switch {
		case res != attemptFailed:
			if attempt > 1 {
				logger.Debug().Int("attempt", attempt).Msg("页面加载成功")
			}
			return res, nil
		case errors.Is(err, ErrSessionClosed), errors.Is(err, context.Canceled):
			return attemptFailed, err
		}

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			logger.Error().Err(err).Int("attempts", attempt).Msg("页面加载重试耗尽")
			return attemptFailed, fmt.Errorf("%w: %s (%d次): %v", ErrRetriesExhausted, url, attempt, err)
		}

		delay := policy.Delay(attempt)
		logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("页面未就绪,准备重试")
		if err := l.sleep(ctx, delay); err != nil {
			return attemptFailed, err
		}
	}
}

// attempt 导航 + 等待选择器
// 超时后中止加载, 已渲染出选择器的页面同样视为就绪
func (l *Loader) attempt(ctx context.Context, s PageSession, url, selector string, listing bool, logger zerolog.Logger) (attemptResult, error) {
	err := s.Navigate(ctx, url, l.config.PageLoadTimeout)
	if err == nil {
		err = s.WaitForPresence(ctx, selector, l.config.WaitTimeout)
		if err == nil {
			return attemptReady, nil
		}
	}

	if listing && errors.Is(err, ErrElementNotFound) {
		logger.Warn().Str("selector", selector).Msg("列表页没有offer")
		return attemptEmpty, nil
	}

	if !errors.Is(err, ErrLoadTimeout) {
		return attemptFailed, err
	}

	logger.Warn().Msg("页面加载超时,中止加载")
	if abortErr := s.AbortLoad(); abortErr != nil {
		logger.Debug().Err(abortErr).Msg("中止加载失败")
	}

	if els, findErr := s.FindAll(selector); findErr == nil && len(els) > 0 {
		return attemptReady, nil
	}
	if listing && l.config.NoResults != "" {
		if els, findErr := s.FindAll(l.config.NoResults); findErr == nil && len(els) > 0 {
			logger.Warn().Str("selector", l.config.NoResults).Msg("列表页没有offer")
			return attemptEmpty, nil
		}
	}
	return attemptFailed, err
}
