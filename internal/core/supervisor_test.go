package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/rs/zerolog"
)

func newTestSupervisor(config models.SupervisorConfig, run RunJobFunc) (*Supervisor, *[]time.Duration) {
	s := NewSupervisor(config, run, zerolog.Nop())
	var sleeps []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return s, &sleeps
}

func testSupervisorConfig(maxActive int) models.SupervisorConfig {
	return models.SupervisorConfig{
		MaxActive:       maxActive,
		StaggerDelay:    60 * time.Second,
		ReclaimCooldown: 180 * time.Second,
		PollInterval:    5 * time.Millisecond,
	}
}

func TestSupervisor_ActiveCap(t *testing.T) {
	for _, maxActive := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("N=%d", maxActive), func(t *testing.T) {
			var (
				current, peak atomic.Int64
				mu            sync.Mutex
				runs          = make(map[string]int)
			)
			run := func(ctx context.Context, job *models.CategoryJob) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				mu.Lock()
				runs[job.Category]++
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			}

			categories := []string{"toyota", "bmw", "audi", "lada", "kia", "mazda", "nissan"}
			s, sleeps := newTestSupervisor(testSupervisorConfig(maxActive), run)
			summary := s.Run(context.Background(), categories)

			if got := peak.Load(); got > int64(maxActive) {
				t.Errorf("并发任务峰值 = %d, 超过上限 %d", got, maxActive)
			}
			if summary.Completed != len(categories) || summary.Failed != 0 {
				t.Errorf("Completed/Failed = %d/%d, want %d/0", summary.Completed, summary.Failed, len(categories))
			}
			for _, c := range categories {
				if runs[c] != 1 {
					t.Errorf("分类 %s 运行了 %d 次, want 1", c, runs[c])
				}
			}

			var staggers, reclaims int
			for _, d := range *sleeps {
				switch d {
				case 60 * time.Second:
					staggers++
				case 180 * time.Second:
					reclaims++
				}
			}
			if staggers != len(categories) || reclaims != len(categories) {
				t.Errorf("stagger/reclaim 次数 = %d/%d, want %d/%d", staggers, reclaims, len(categories), len(categories))
			}
		})
	}
}

func TestSupervisor_InsertionOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	run := func(ctx context.Context, job *models.CategoryJob) error {
		mu.Lock()
		order = append(order, job.Category)
		mu.Unlock()
		return nil
	}

	s, _ := newTestSupervisor(testSupervisorConfig(1), run)
	s.Run(context.Background(), []string{"toyota", "bmw", "audi"})

	if got := fmt.Sprint(order); got != "[toyota bmw audi]" {
		t.Errorf("启动顺序 = %s, want [toyota bmw audi]", got)
	}
}

func TestSupervisor_SkipsDuplicateAndInvalid(t *testing.T) {
	var started atomic.Int64
	run := func(ctx context.Context, job *models.CategoryJob) error {
		started.Add(1)
		return nil
	}

	s, _ := newTestSupervisor(testSupervisorConfig(2), run)
	summary := s.Run(context.Background(), []string{"toyota", "bmw", " toyota ", "", "a/b"})

	if started.Load() != 2 {
		t.Errorf("启动任务数 = %d, want 2", started.Load())
	}
	if len(summary.Skipped) != 3 {
		t.Errorf("Skipped = %v, want 3项", summary.Skipped)
	}
}

func TestSupervisor_FailedAndPanickingJobs(t *testing.T) {
	run := func(ctx context.Context, job *models.CategoryJob) error {
		switch job.Category {
		case "bmw":
			return errors.New("列表页加载失败")
		case "audi":
			panic("boom")
		}
		job.Stats.RecordsWritten = 3
		return nil
	}

	s, _ := newTestSupervisor(testSupervisorConfig(3), run)
	summary := s.Run(context.Background(), []string{"toyota", "bmw", "audi"})

	if summary.Completed != 1 || summary.Failed != 2 {
		t.Fatalf("Completed/Failed = %d/%d, want 1/2", summary.Completed, summary.Failed)
	}

	byCategory := make(map[string]*models.CategoryJob)
	for _, job := range summary.Jobs {
		byCategory[job.Category] = job
	}
	if job := byCategory["toyota"]; job.Status != models.JobStatusCompleted || job.Stats.RecordsWritten != 3 {
		t.Errorf("toyota = %s/%d", job.Status, job.Stats.RecordsWritten)
	}
	if job := byCategory["bmw"]; job.Status != models.JobStatusFailed || job.ErrorMessage == "" {
		t.Errorf("bmw = %s/%q", job.Status, job.ErrorMessage)
	}
	if job := byCategory["audi"]; job.Status != models.JobStatusFailed || job.FinishedAt == nil {
		t.Errorf("panic任务应标记为失败: %+v", job)
	}
}

// rejectingGate 前n次拒绝
type rejectingGate struct {
	rejections int
	calls      int
}

func (g *rejectingGate) Admit() (bool, string) {
	g.calls++
	if g.calls <= g.rejections {
		return false, "可用内存不足"
	}
	return true, ""
}

func TestSupervisor_AdmissionGateDefersStart(t *testing.T) {
	var started atomic.Int64
	run := func(ctx context.Context, job *models.CategoryJob) error {
		started.Add(1)
		return nil
	}

	gate := &rejectingGate{rejections: 3}
	s, _ := newTestSupervisor(testSupervisorConfig(2), run)
	s.WithAdmissionGate(gate)

	summary := s.Run(context.Background(), []string{"toyota", "bmw"})

	if started.Load() != 2 || summary.Completed != 2 {
		t.Errorf("started/completed = %d/%d, want 2/2", started.Load(), summary.Completed)
	}
	if gate.calls < 5 {
		t.Errorf("准入检查次数 = %d, want >= 5", gate.calls)
	}
}

func TestSupervisor_CanceledContext(t *testing.T) {
	var started atomic.Int64
	run := func(ctx context.Context, job *models.CategoryJob) error {
		started.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _ := newTestSupervisor(testSupervisorConfig(2), run)
	summary := s.Run(ctx, []string{"toyota", "bmw"})

	if started.Load() != 0 {
		t.Errorf("上下文取消后不应启动任务, started = %d", started.Load())
	}
	if len(summary.Skipped) != 2 {
		t.Errorf("Skipped = %v, want 2项", summary.Skipped)
	}
}

func TestSupervisor_WaitsForActiveJobsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	run := func(ctx context.Context, job *models.CategoryJob) error {
		cancel()
		<-release
		return ctx.Err()
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	s, _ := newTestSupervisor(testSupervisorConfig(1), run)
	summary := s.Run(ctx, []string{"toyota", "bmw"})

	if len(summary.Jobs) != 1 || summary.Failed != 1 {
		t.Errorf("Jobs/Failed = %d/%d, want 1/1", len(summary.Jobs), summary.Failed)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0] != "bmw" {
		t.Errorf("Skipped = %v, want [bmw]", summary.Skipped)
	}
}

func TestRunSummary_Report(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	job, _ := models.NewCategoryJob("toyota")
	job.Stats.RecordsWritten = 42
	job.MarkFinished(nil)

	summary := &RunSummary{
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Jobs:      []*models.CategoryJob{job},
		Skipped:   []string{"bmw"},
		Completed: 1,
	}

	report := summary.Report("data", models.ScrapeConfig{Company: "kolesa"}, models.SupervisorConfig{MaxActive: 2})
	if report.Duration != 90 {
		t.Errorf("Duration = %v, want 90", report.Duration)
	}
	if report.TotalJobs != 1 || report.CompletedJobs != 1 || report.SkippedJobs != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.TotalRecords() != 42 {
		t.Errorf("TotalRecords() = %d, want 42", report.TotalRecords())
	}
}
