package crawlers

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/KolesaCrawl/internal/output"
	"github.com/rs/zerolog"
)

// Worker 单个offer的处理任务
// 独占一个页面会话: 加载详情页 -> 提取 -> 写入 -> 关闭会话
type Worker struct {
	factory   SessionFactory
	loader    *Loader
	extractor *Extractor
	writer    output.RecordWriter
	logger    zerolog.Logger
}

// NewWorker 创建Worker
func NewWorker(factory SessionFactory, loader *Loader, extractor *Extractor, writer output.RecordWriter, logger zerolog.Logger) *Worker {
	return &Worker{
		factory:   factory,
		loader:    loader,
		extractor: extractor,
		writer:    writer,
		logger:    logger,
	}
}

// ProcessOffer 处理单个offer
// 详情页重试耗尽时不写入记录, 返回错误
func (w *Worker) ProcessOffer(ctx context.Context, offerURL, category string) (err error) {
	logger := w.logger.With().Str("category", category).Str("offer", offerURL).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("offer处理panic: %v", r)
			logger.Error().Interface("panic", r).Msg("捕获panic")
		}
	}()

	logger.Info().Msg("开始处理offer")

	session, err := w.factory.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("创建页面会话失败: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("关闭页面会话失败")
		}
	}()

	if err := w.loader.LoadDetail(ctx, session, offerURL); err != nil {
		return fmt.Errorf("加载详情页失败: %w", err)
	}
	logger.Debug().Msg("详情页已打开")

	listing := w.extractor.Extract(session, offerURL)
	if err := w.writer.Append(category, listing); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}

	logger.Info().Msg("✅ offer处理完成")
	return nil
}
