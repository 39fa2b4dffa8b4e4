package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/RecoveryAshes/KolesaCrawl/internal/utils"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// RunJobFunc 执行一个分类任务, 返回时任务即结束
type RunJobFunc func(ctx context.Context, job *models.CategoryJob) error

// AdmissionGate 启动新任务前的准入检查
type AdmissionGate interface {
	Admit() (bool, string)
}

// RunSummary 调度运行摘要
type RunSummary struct {
	StartTime time.Time
	EndTime   time.Time
	Jobs      []*models.CategoryJob // 按结束顺序
	Skipped   []string              // 重复或非法的分类名
	Completed int
	Failed    int
}

// Report 转换为运行报告
func (s *RunSummary) Report(outputDir string, scrape models.ScrapeConfig, supervisor models.SupervisorConfig) *models.RunReport {
	report := &models.RunReport{
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		Duration:      s.EndTime.Sub(s.StartTime).Seconds(),
		TotalJobs:     len(s.Jobs),
		CompletedJobs: s.Completed,
		FailedJobs:    s.Failed,
		SkippedJobs:   len(s.Skipped),
		Jobs:          make([]models.CategoryJob, 0, len(s.Jobs)),
		OutputDir:     outputDir,
		Scrape:        scrape,
		Supervisor:    supervisor,
	}
	for _, job := range s.Jobs {
		report.Jobs = append(report.Jobs, *job)
	}
	return report
}

// jobDone 任务结束通知
type jobDone struct {
	job *models.CategoryJob
	err error
}

// Supervisor 分类任务调度器
// pending 和 active 只由 Run 所在的goroutine修改
type Supervisor struct {
	config models.SupervisorConfig
	run    RunJobFunc
	gate   AdmissionGate
	bar    *progressbar.ProgressBar
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSupervisor 创建调度器
func NewSupervisor(config models.SupervisorConfig, run RunJobFunc, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		config: config,
		run:    run,
		logger: logger,
		sleep:  utils.SleepContext,
	}
}

// WithAdmissionGate 设置准入检查
func (s *Supervisor) WithAdmissionGate(gate AdmissionGate) *Supervisor {
	s.gate = gate
	return s
}

// WithProgressBar 设置进度条, 每个任务结束时前进一格
func (s *Supervisor) WithProgressBar(bar *progressbar.ProgressBar) *Supervisor {
	s.bar = bar
	return s
}

// Run 调度全部分类任务
// 待处理队列为空且所有已启动任务都已结束时返回; 任务不会被重新排队
func (s *Supervisor) Run(ctx context.Context, categories []string) *RunSummary {
	summary := &RunSummary{StartTime: time.Now()}

	pending := s.buildQueue(categories, summary)
	active := make(map[string]*models.CategoryJob)
	done := make(chan jobDone, len(pending))

	s.logger.Info().
		Int("categories", len(pending)).
		Int("max_active", s.config.MaxActive).
		Msg("🚀 开始调度分类任务")

	for len(pending) > 0 || len(active) > 0 {
		progressed := false

		// 回收已结束的任务
	reclaim:
		for {
			select {
			case d := <-done:
				s.reclaim(ctx, d, active, summary)
				progressed = true
			default:
				break reclaim
			}
		}

		if ctx.Err() != nil && len(pending) > 0 {
			s.logger.Warn().Int("pending", len(pending)).Msg("上下文已取消, 不再启动新任务")
			for _, job := range pending {
				summary.Skipped = append(summary.Skipped, job.Category)
			}
			pending = nil
		}

		// 有空位时启动新任务
		for len(pending) > 0 && len(active) < s.config.MaxActive {
			if s.gate != nil {
				if ok, reason := s.gate.Admit(); !ok {
					s.logger.Warn().Str("reason", reason).Msg("资源不足, 推迟启动新任务")
					break
				}
			}

			job := pending[0]
			pending = pending[1:]
			active[job.ID] = job
			s.start(ctx, job, done)
			progressed = true

			if err := s.sleep(ctx, s.config.StaggerDelay); err != nil {
				break
			}
		}

		if progressed || (len(pending) == 0 && len(active) == 0) {
			continue
		}

		// 本轮无进展: 等待任务结束或轮询间隔, 不空转
		timer := time.NewTimer(s.config.PollInterval)
		select {
		case d := <-done:
			s.reclaim(ctx, d, active, summary)
		case <-timer.C:
		case <-ctx.Done():
			if len(active) > 0 {
				s.reclaim(ctx, <-done, active, summary)
			}
		}
		timer.Stop()
	}

	summary.EndTime = time.Now()
	s.printSummary(summary)
	return summary
}

// buildQueue 按输入顺序构建待处理队列, 丢弃重复和非法的分类名
func (s *Supervisor) buildQueue(categories []string, summary *RunSummary) []*models.CategoryJob {
	seen := make(map[string]bool, len(categories))
	queue := make([]*models.CategoryJob, 0, len(categories))
	for _, category := range categories {
		name := strings.TrimSpace(category)
		if seen[name] {
			s.logger.Warn().Str("category", name).Msg("重复的分类名, 已跳过")
			summary.Skipped = append(summary.Skipped, name)
			continue
		}
		job, err := models.NewCategoryJob(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("category", name).Msg("非法的分类名, 已跳过")
			summary.Skipped = append(summary.Skipped, name)
			continue
		}
		seen[name] = true
		queue = append(queue, job)
	}
	return queue
}

// start 在独立goroutine中运行任务, 结束时(包括panic)通知done
func (s *Supervisor) start(ctx context.Context, job *models.CategoryJob, done chan<- jobDone) {
	job.MarkRunning()
	s.logger.Info().Str("category", job.Category).Str("job_id", job.ID).Msg("启动分类任务")

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("分类任务panic: %v", r)
			}
			done <- jobDone{job: job, err: err}
		}()
		err = s.run(ctx, job)
	}()
}

// reclaim 移除已结束的任务并冷却
func (s *Supervisor) reclaim(ctx context.Context, d jobDone, active map[string]*models.CategoryJob, summary *RunSummary) {
	delete(active, d.job.ID)
	d.job.MarkFinished(d.err)
	summary.Jobs = append(summary.Jobs, d.job)

	logger := s.logger.With().Str("category", d.job.Category).Str("job_id", d.job.ID).Logger()
	if d.err != nil {
		summary.Failed++
		logger.Error().Err(d.err).Msg("❌ 分类任务失败")
	} else {
		summary.Completed++
		logger.Info().Int("records", d.job.Stats.RecordsWritten).Msg("✅ 分类任务结束")
	}

	if s.bar != nil {
		_ = s.bar.Add(1)
	}

	_ = s.sleep(ctx, s.config.ReclaimCooldown)
}

// printSummary 打印调度摘要
func (s *Supervisor) printSummary(summary *RunSummary) {
	records := 0
	for _, job := range summary.Jobs {
		records += job.Stats.RecordsWritten
	}
	s.logger.Info().
		Int("jobs", len(summary.Jobs)).
		Int("completed", summary.Completed).
		Int("failed", summary.Failed).
		Int("skipped", len(summary.Skipped)).
		Int("records", records).
		Float64("duration_sec", summary.EndTime.Sub(summary.StartTime).Seconds()).
		Msg("📊 调度完成")

	for _, job := range summary.Jobs {
		if job.Status == models.JobStatusFailed {
			s.logger.Warn().Str("category", job.Category).Str("error", job.ErrorMessage).Msg("失败的分类")
		}
	}
}
