package crawlers

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// OfferProcessor 处理单个offer
type OfferProcessor interface {
	ProcessOffer(ctx context.Context, offerURL, category string) error
}

// DispatchResult 分批处理结果
type DispatchResult struct {
	Batches   int
	Succeeded int
	Failed    int
}

// Dispatcher 按批并发处理offer
// 每批最多batchSize个任务并发执行, 整批结束后才开始下一批
type Dispatcher struct {
	processor OfferProcessor
	batchSize int
	logger    zerolog.Logger
}

// NewDispatcher 创建分批调度器
func NewDispatcher(processor OfferProcessor, batchSize int, logger zerolog.Logger) *Dispatcher {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Dispatcher{
		processor: processor,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Dispatch 处理一页的全部offer
func (d *Dispatcher) Dispatch(ctx context.Context, category string, offers []string) DispatchResult {
	var result DispatchResult
	logger := d.logger.With().Str("category", category).Logger()

	for start := 0; start < len(offers); start += d.batchSize {
		if ctx.Err() != nil {
			logger.Warn().Int("remaining", len(offers)-start).Msg("上下文已取消,停止分批处理")
			break
		}

		end := min(start+d.batchSize, len(offers))
		batch := offers[start:end]
		logger.Info().Msgf("开始处理offer [%d:%d]", start+1, end)

		var (
			g         errgroup.Group
			succeeded atomic.Int64
			failed    atomic.Int64
		)
		for _, offer := range batch {
			offer := offer
			g.Go(func() error {
				if err := d.processor.ProcessOffer(ctx, offer, category); err != nil {
					failed.Add(1)
					logger.Error().Err(err).Str("offer", offer).Msg("❌ offer处理失败")
					return err
				}
				succeeded.Add(1)
				return nil
			})
		}
		// 屏障: 整批任务全部返回
		_ = g.Wait()

		result.Batches++
		result.Succeeded += int(succeeded.Load())
		result.Failed += int(failed.Load())
		logger.Debug().Int("batch", result.Batches).Int64("failed", failed.Load()).Msg("批次完成")
	}

	return result
}
