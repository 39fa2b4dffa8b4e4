package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// RunReportFile 运行报告文件名
const RunReportFile = "run_report.json"

// Reporter 报告生成器
type Reporter struct {
	outputDir string
	logger    zerolog.Logger
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string, logger zerolog.Logger) *Reporter {
	return &Reporter{
		outputDir: outputDir,
		logger:    logger,
	}
}

// ReportPath 报告文件路径
func (r *Reporter) ReportPath() string {
	return filepath.Join(r.outputDir, "reports", RunReportFile)
}

// GenerateReport 写入运行报告
func (r *Reporter) GenerateReport(report *models.RunReport) error {
	path := r.ReportPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	jsonData, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	r.logger.Info().Str("path", path).Msg("✅ 报告已生成")
	return nil
}

// LoadReport 读取运行报告
func (r *Reporter) LoadReport() (*models.RunReport, error) {
	data, err := os.ReadFile(r.ReportPath())
	if err != nil {
		return nil, fmt.Errorf("读取报告文件失败: %w", err)
	}
	var report models.RunReport
	if err := report.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析报告文件失败: %w", err)
	}
	return &report, nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
